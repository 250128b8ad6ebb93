package main

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/campaign-mailer/internal/db"
	"github.com/unclebandit/campaign-mailer/internal/repository"
	"github.com/unclebandit/campaign-mailer/internal/service"
)

const sampleCSV = `Email, First_Name, last_name, company, city
ann@x.io, Ann, Lee, Acme,
bob@x.io, Bob, , , Nairobi
not-an-email, Eve, , ,
`

func TestParseContactsCSV(t *testing.T) {
	contacts, err := parseContactsCSV(strings.NewReader(sampleCSV), true)
	require.NoError(t, err)
	require.Len(t, contacts, 3)

	assert.Equal(t, "ann@x.io", contacts[0].Email)
	assert.Equal(t, "Ann", contacts[0].FirstName)
	assert.Equal(t, "Lee", contacts[0].LastName)
	assert.Equal(t, map[string]string{"company": "Acme"}, contacts[0].CustomFields)
	assert.Equal(t, map[string]string{"city": "Nairobi"}, contacts[1].CustomFields)
	assert.True(t, contacts[1].Active)
}

func TestParseContactsCSVRequiresEmail(t *testing.T) {
	_, err := parseContactsCSV(strings.NewReader("name,company\nAnn,Acme\n"), true)
	assert.ErrorContains(t, err, "email")

	_, err = parseContactsCSV(strings.NewReader(""), true)
	assert.Error(t, err)
}

func TestImportContacts(t *testing.T) {
	ctx := context.Background()
	conn, err := db.OpenMemory(ctx)
	require.NoError(t, err)
	defer conn.Close()

	contacts, err := parseContactsCSV(strings.NewReader(sampleCSV), true)
	require.NoError(t, err)
	svc := &service.ContactService{ContactRepo: &repository.ContactRepository{DB: conn}}

	res, err := importContacts(ctx, svc, contacts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Len(t, res.Errors, 1)

	// importing again skips everything that exists
	again, err := parseContactsCSV(strings.NewReader(sampleCSV), true)
	require.NoError(t, err)
	res, err = importContacts(ctx, svc, again)
	require.NoError(t, err)
	assert.Zero(t, res.Created)
	assert.Equal(t, 2, res.Skipped)
}
