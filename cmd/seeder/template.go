package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/repository"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Template seed commands",
}

var templateAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Store a template",
	Example: `  seeder template add --name welcome --subject 'Hi $first_name' --content-file welcome.txt --use-llm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		description, _ := cmd.Flags().GetString("description")
		subject, _ := cmd.Flags().GetString("subject")
		content, _ := cmd.Flags().GetString("content")
		contentFile, _ := cmd.Flags().GetString("content-file")
		useLLM, _ := cmd.Flags().GetBool("use-llm")

		if contentFile != "" {
			b, err := os.ReadFile(contentFile)
			if err != nil {
				return err
			}
			content = string(b)
		}

		conn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := &service.TemplateService{TemplateRepo: &repository.TemplateRepository{DB: conn}}
		tpl := &model.Template{
			Name:        name,
			Description: description,
			Subject:     subject,
			Content:     content,
			UseLLM:      useLLM,
		}
		if err := svc.Save(cmd.Context(), tpl); err != nil {
			return err
		}
		fmt.Printf("TEMPLATE_ID=%s\n", tpl.ID)
		fmt.Printf("PLACEHOLDERS=%v\n", tpl.Placeholders)
		return nil
	},
}

func init() {
	templateAddCmd.Flags().String("name", "", "template name")
	templateAddCmd.Flags().String("description", "", "template description")
	templateAddCmd.Flags().String("subject", "", "subject line, may contain placeholders")
	templateAddCmd.Flags().String("content", "", "body text")
	templateAddCmd.Flags().String("content-file", "", "read the body from a file instead of --content")
	templateAddCmd.Flags().Bool("use-llm", false, "let the model personalize each message")
	templateAddCmd.MarkFlagsMutuallyExclusive("content", "content-file")
	templateCmd.AddCommand(templateAddCmd)
}
