package tenancy

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/motorcrm/motorcrm/internal/shared"
)

// Service creates and reads organizations.
type Service struct {
	repo Repository
}

// NewService constructs a Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns one organization.
func (s *Service) Get(ctx context.Context, id int64) (*Organization, error) {
	return s.repo.Get(ctx, id)
}

// Ensure returns the organization whose slug matches in.Name, creating it when
// missing. Seeding calls it repeatedly.
func (s *Service) Ensure(ctx context.Context, in CreateInput) (*Organization, bool, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := shared.Validate.Struct(in); err != nil {
		return nil, false, err
	}
	slug := Slugify(in.Name)
	if slug == "" {
		return nil, false, ErrInvalidName
	}
	existing, err := s.repo.GetBySlug(ctx, slug)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}
	org := Organization{Name: in.Name, Slug: slug, Locale: in.Locale, Currency: in.Currency}
	if org.Locale == "" {
		org.Locale = "en"
	}
	if org.Currency == "" {
		org.Currency = "EUR"
	}
	id, err := s.repo.Create(ctx, org)
	if err != nil {
		return nil, false, err
	}
	created, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify lowercases name, drops accents and joins words with dashes.
func Slugify(name string) string {
	plain, _, err := transform.String(stripMarks, name)
	if err != nil {
		plain = name
	}
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}
