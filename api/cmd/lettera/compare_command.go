package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"lettera/api/internal/compare/types"
	"lettera/api/internal/util"
)

func newCompareCommand(ctx *commandContext) *cobra.Command {
	var (
		in      types.CompareRequest
		llmName string
	)
	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare a handwritten attempt with a reference image and print the verdict",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			req := in
			if req.UserImage, err = readImageArg(req.UserImage); err != nil {
				return fmt.Errorf("--user: %w", err)
			}
			if req.ReferenceImage, err = readImageArg(req.ReferenceImage); err != nil {
				return fmt.Errorf("--reference: %w", err)
			}

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			svc, db, err := buildService(parent, cfg, log)
			if err != nil {
				return err
			}
			if db != nil {
				defer db.Close()
			}

			runCtx, cancel := context.WithTimeout(parent, cfg.LLMTimeout)
			defer cancel()
			res, err := svc.Compare(runCtx, llmName, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd, res)
		},
	}
	cmd.Flags().StringVar(&in.UserImage, "user", "", "User attempt: file path, http(s) URL, data URI or base64")
	cmd.Flags().StringVar(&in.ReferenceImage, "reference", "", "Reference glyph: file path, http(s) URL, data URI or base64")
	cmd.Flags().StringVar(&in.Letter, "letter", "", "Expected letter (default none)")
	cmd.Flags().StringVar(&in.Language, "language", "", "Letter language (default none)")
	cmd.Flags().StringVar(&in.SystemLanguage, "system-language", "", "Language of advice text (default en)")
	cmd.Flags().StringVar(&llmName, "llm", "", "Engine: gpt or gemini (default DEFAULT_LLM)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("reference")
	return cmd
}

// readImageArg: существующий файл читается и кодируется в data:URI, остальное передаётся как есть.
func readImageArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" || util.IsRemoteURL(arg) || strings.HasPrefix(arg, "data:") {
		return arg, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || looksLikeBase64(arg) {
			// не файл: считаем голым base64
			return arg, nil
		}
		return "", err
	}
	return util.MakeDataURL(util.PickMIME("", "", data), base64.StdEncoding.EncodeToString(data)), nil
}

func looksLikeBase64(s string) bool {
	return len(s) > 255
}
