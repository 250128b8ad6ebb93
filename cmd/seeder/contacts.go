package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-mailer/internal/model"
	"github.com/unclebandit/campaign-mailer/internal/repository"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

var contactsCmd = &cobra.Command{
	Use:   "contacts",
	Short: "Contact seed commands",
}

var contactsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import contacts from a CSV file",
	Long: `Import contacts from a CSV file with a header row.

The file must have an "email" column. "first_name" and "last_name" fill the
contact's name; every other column becomes a custom field. Addresses that
already exist are skipped.`,
	Example: "  seeder contacts import --csv contacts.csv",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("csv")
		inactive, _ := cmd.Flags().GetBool("inactive")
		if path == "" {
			return fmt.Errorf("--csv is required")
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		contacts, err := parseContactsCSV(f, !inactive)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		conn, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer conn.Close()

		svc := &service.ContactService{ContactRepo: &repository.ContactRepository{DB: conn}}
		res, err := importContacts(cmd.Context(), svc, contacts)
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d contacts, skipped %d existing.\n", res.Created, res.Skipped)
		for _, e := range res.Errors {
			fmt.Println("  ", e)
		}
		return nil
	},
}

func init() {
	contactsImportCmd.Flags().String("csv", "", "path to the CSV file")
	contactsImportCmd.Flags().Bool("inactive", false, "import contacts as inactive")
	contactsCmd.AddCommand(contactsImportCmd)
}

// parseContactsCSV reads one contact per row. Empty cells are ignored.
func parseContactsCSV(r io.Reader, active bool) ([]model.Contact, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, err
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	emailCol := -1
	for i, h := range header {
		if h == "email" {
			emailCol = i
		}
	}
	if emailCol < 0 {
		return nil, errors.New(`missing "email" column`)
	}

	var contacts []model.Contact
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		c := model.Contact{CustomFields: map[string]string{}, Active: active}
		for i, value := range record {
			value = strings.TrimSpace(value)
			if value == "" || i >= len(header) {
				continue
			}
			switch header[i] {
			case "email":
				c.Email = value
			case "first_name":
				c.FirstName = value
			case "last_name":
				c.LastName = value
			default:
				c.CustomFields[header[i]] = value
			}
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func importContacts(ctx context.Context, svc *service.ContactService, contacts []model.Contact) (*service.BulkResult, error) {
	if len(contacts) == 0 {
		return &service.BulkResult{Errors: []string{}}, nil
	}
	return svc.BulkCreate(ctx, contacts)
}
