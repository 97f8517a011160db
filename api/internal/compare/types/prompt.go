package types

import (
	"fmt"
	"strings"
)

// BuildPrompt собирает текстовую часть мультимодального запроса.
// Первая картинка: попытка пользователя, вторая: эталон.
func BuildPrompt(in CompareRequest) string {
	in = in.WithDefaults()

	var b strings.Builder
	b.WriteString("You will receive two pictures. Each may or may not contain a single handwritten letter.\n")
	fmt.Fprintf(&b, "In the second picture is letter: %s.\n\n", in.Letter)

	b.WriteString(`Step 1: Detect the letter in the first image. If no letter is present, write "no letter" in the "letter" field.
Step 2: Detect the letter in the second image ("correct"). If no letter is present, treat it as missing.
Step 3: If one of the images has no letter, set "percents" to 0 and explain in "difference" and "description".
Step 4: If both images have letters, compare them:
- If the letters are different characters (e.g., 'Ґ' vs 'Г'), set "percents" to 0 and explain the mismatch.
- If the letters are the same character but differ in style (e.g., cursive vs print), calculate similarity based on shape and style. Set "percents" accordingly (e.g., 60-90).
- Suggest ways the user can improve their handwriting for that specific letter (e.g., "try to close the top loop" or "practice the curve in the lower part").

Special notes:
- Handwritten Ukrainian letters such as "Ґ", "Ї", "Є", or stylized versions of them may resemble mathematical symbols like ∫ or ƒ. Always interpret based on full shape and national writing style. Do not confuse stylized Ukrainian letters with unrelated symbols.
- Use only letters from the passed language. If the character appears to be from a different script or a symbol, and the intended letter is unclear, return "no letter" and start the sentence with 'On this image'.
`)

	if in.VisualOnly() {
		b.WriteString(`
Letter and language are both "none":
- Ignore all letter detection and language-specific rules.
- Simply compare the visual similarity of the two images (shapes, strokes, style).
- Return the similarity percentage in "percents".
`)
	}

	fmt.Fprintf(&b, "\n- Give answers in %s\nLanguage: %s\n\n", in.SystemLanguage, in.Language)
	b.WriteString(`Respond with a single JSON object and nothing else:
{
  "percents": number,
  "advice": string,
  "letter": string,
  "difference": string,
  "description": string
}`)
	return b.String()
}
