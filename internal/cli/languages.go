package cli

import (
	"github.com/spf13/cobra"

	"video2article/internal/bootstrap"
	"video2article/internal/output"
)

func newLanguagesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "languages",
		Short: "List supported transcription languages",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			table := output.NewTable(opts.stdout, []string{"Code", "Language", ""})
			for _, lang := range bootstrap.SupportedLanguages() {
				marker := ""
				if lang.Code == opts.settings.Language {
					marker = "(selected)"
				}
				table.AddRow(lang.Code, lang.Name, marker)
			}
			return table.Render()
		},
	}
}
