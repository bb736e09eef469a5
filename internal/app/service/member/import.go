package member

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strconv"
	"strings"

	"gorm.io/gorm"

	"github.com/fatflowers/alumni/internal/models"
	"github.com/fatflowers/alumni/internal/platform/mpesa"
	"github.com/fatflowers/alumni/pkg/apperr"
	"github.com/fatflowers/alumni/pkg/logctx"
	"github.com/fatflowers/alumni/pkg/types"
)

// MaxImportSize caps an uploaded member CSV.
const MaxImportSize = 5 << 20

var importColumns = []string{"email", "first_name", "last_name", "phone", "membership_number", "graduation_year", "course"}

// columnAliases maps common spreadsheet headings onto import columns.
var columnAliases = map[string]string{
	"e_mail":        "email",
	"email_address": "email",
	"firstname":     "first_name",
	"first":         "first_name",
	"lastname":      "last_name",
	"surname":       "last_name",
	"last":          "last_name",
	"mobile":        "phone",
	"phone_number":  "phone",
	"member_no":     "membership_number",
	"member_number": "membership_number",
	"year":          "graduation_year",
	"class_of":      "graduation_year",
	"programme":     "course",
	"program":       "course",
}

type ImportResult struct {
	Imported   int      `json:"imported"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors"`
	ArchiveKey string   `json:"archive_key,omitempty"`
}

func (r *ImportResult) skip(line int, format string, args ...any) {
	r.Skipped++
	r.Errors = append(r.Errors, fmt.Sprintf("line %d: %s", line, fmt.Sprintf(format, args...)))
}

type importRow struct {
	line           int
	email          string
	firstName      string
	lastName       string
	phone          string
	number         string
	graduationYear *int
	course         string
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return h
}

// parseImport maps the header row onto import columns; unknown columns are ignored.
func parseImport(data []byte) ([]importRow, *ImportResult, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, apperr.InvalidErr("the file is empty", map[string]string{"file": "no header row"})
	}
	if err != nil {
		return nil, nil, apperr.InvalidErr("the file is not valid CSV", map[string]string{"file": err.Error()})
	}
	index := map[string]int{}
	for i, h := range header {
		col := normalizeHeader(h)
		if _, dup := index[col]; !dup {
			index[col] = i
		}
	}
	if _, ok := index["email"]; !ok {
		return nil, nil, apperr.InvalidErr("the file needs an email column", map[string]string{"file": "accepted columns: " + strings.Join(importColumns, ", ")})
	}

	res := &ImportResult{Errors: []string{}}
	var rows []importRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return nil, nil, apperr.InvalidErr("the file could not be read", map[string]string{"file": err.Error()})
			}
			res.skip(perr.StartLine, "unreadable row: %v", perr.Err)
			continue
		}
		line, _ := r.FieldPos(0)
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(rec) {
				return ""
			}
			return strings.TrimSpace(rec[i])
		}
		if strings.TrimSpace(strings.Join(rec, "")) == "" {
			continue
		}
		row := importRow{
			line:      line,
			email:     strings.ToLower(get("email")),
			firstName: get("first_name"),
			lastName:  get("last_name"),
			phone:     get("phone"),
			number:    get("membership_number"),
			course:    get("course"),
		}
		if row.email == "" {
			res.skip(line, "missing email")
			continue
		}
		if _, err := mail.ParseAddress(row.email); err != nil {
			res.skip(line, "invalid email %q", row.email)
			continue
		}
		if y := get("graduation_year"); y != "" {
			year, err := strconv.Atoi(y)
			if err != nil || year < 1950 || year > 2100 {
				res.skip(line, "invalid graduation year %q", y)
				continue
			}
			row.graduationYear = &year
		}
		if row.phone != "" {
			phone, err := mpesa.NormalizePhone(row.phone)
			if err != nil {
				res.skip(line, "invalid phone %q", row.phone)
				continue
			}
			row.phone = phone
		}
		rows = append(rows, row)
	}
	return rows, res, nil
}

// Import creates inactive profiles from an uploaded CSV. Rows without an
// email, with an email already on file or repeated within the file are
// skipped and counted. The raw upload is archived first.
func (s *Service) Import(ctx context.Context, adminID, filename string, r io.Reader) (*ImportResult, error) {
	lg := logctx.FromCtx(ctx, s.log)
	data, err := io.ReadAll(io.LimitReader(r, MaxImportSize+1))
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	if len(data) > MaxImportSize {
		return nil, apperr.InvalidErr("the file is larger than 5 MB", map[string]string{"file": "too large"})
	}

	rows, res, err := parseImport(data)
	if err != nil {
		return nil, err
	}

	key, err := s.archive.Put(ctx, filename, "text/csv", bytes.NewReader(data))
	if err != nil {
		lg.Warnw("member_import_archive_failed", "file", filename, "err", err)
	}
	res.ArchiveKey = key

	emails := make([]string, 0, len(rows))
	for _, row := range rows {
		emails = append(emails, row.email)
	}
	existing, err := s.profiles.ExistingEmails(ctx, emails)
	if err != nil {
		return nil, apperr.Wrap(err)
	}
	seen := map[string]bool{}
	for _, row := range rows {
		if ctx.Err() != nil {
			return res, apperr.Wrap(ctx.Err())
		}
		switch {
		case existing[row.email]:
			res.skip(row.line, "%s is already a member", row.email)
			continue
		case seen[row.email]:
			res.skip(row.line, "%s appears more than once", row.email)
			continue
		}
		seen[row.email] = true
		if err := s.importRow(ctx, row); err != nil {
			res.skip(row.line, "%v", err)
			continue
		}
		res.Imported++
	}

	s.audit.Record(ctx, adminID, "member_import", "profile", "", map[string]any{
		"file":     filename,
		"imported": res.Imported,
		"skipped":  res.Skipped,
		"archive":  key,
	})
	lg.Infow("member_import_finished", "file", filename, "imported", res.Imported, "skipped", res.Skipped)
	return res, nil
}

func (s *Service) importRow(ctx context.Context, row importRow) error {
	user, err := s.idp.CreateUser(ctx, row.email, types.RoleMember)
	if err != nil {
		return fmt.Errorf("create account for %s: %w", row.email, err)
	}
	p := &models.Profile{
		ID:             user.ID,
		FirstName:      row.firstName,
		LastName:       row.lastName,
		Email:          row.email,
		Phone:          row.phone,
		GraduationYear: row.graduationYear,
		Course:         row.course,
		Status:         types.ProfileStatusInactive,
		Role:           types.RoleMember,
		Source:         types.ProfileSourceImport,
		PasswordSet:    false,
	}
	if row.number != "" {
		number := row.number
		p.MembershipNumber = &number
	}
	if err := s.profiles.Create(ctx, p); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%s or membership number %q is already taken", row.email, row.number)
		}
		return fmt.Errorf("save %s: %w", row.email, err)
	}
	return nil
}
