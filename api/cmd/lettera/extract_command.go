package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"lettera/api/internal/compare/types"
)

func newExtractCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "extract [file]",
		Short:       "Recover the verdict JSON from raw model output (file or stdin)",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				raw []byte
				err error
			)
			if len(args) == 1 && args[0] != "-" {
				raw, err = os.ReadFile(args[0])
			} else {
				raw, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			v, err := types.ParseVerdict(string(raw))
			if err != nil {
				return err
			}
			return writeJSON(cmd, v)
		},
	}
}
