// Package fixture implements gateway.ProfileGateway over a static YAML file.
// It replaces the ERP in development and tests.
package fixture

import (
	"context"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/iudanet/clinicauth/internal/models"
	"github.com/iudanet/clinicauth/internal/server/gateway"
	"github.com/iudanet/clinicauth/internal/validation"
)

// Patient запись файла фикстур
type Patient struct {
	Profile   models.RemoteProfile `yaml:"profile"`
	Phone     string               `yaml:"phone"`
	DocNumber string               `yaml:"doc_number"`
}

// File формат файла фикстур
type File struct {
	Patients []Patient `yaml:"patients"`
}

// Gateway отвечает профилями из фикстур
type Gateway struct {
	patients   map[string]Patient
	permissive bool
}

// NewPermissive создает Gateway, который находит любой телефон и принимает любые цифры документа
func NewPermissive() *Gateway {
	return &Gateway{permissive: true}
}

// Load читает фикстуры из YAML файла
func Load(path string) (*Gateway, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse разбирает фикстуры из YAML
func Parse(data []byte) (*Gateway, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse fixture file: %w", err)
	}

	g := &Gateway{patients: make(map[string]Patient, len(file.Patients))}
	for i, p := range file.Patients {
		phone, err := validation.NormalizePhone(p.Phone)
		if err != nil {
			return nil, fmt.Errorf("patient #%d: %w", i+1, err)
		}
		if _, ok := g.patients[phone]; ok {
			return nil, fmt.Errorf("patient #%d: duplicate phone %s", i+1, phone)
		}
		p.Phone = phone
		g.patients[phone] = p
	}

	return g, nil
}

// FetchProfile implements gateway.ProfileGateway
func (g *Gateway) FetchProfile(ctx context.Context, phone, docDigits string) (*models.RemoteProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	normalized, err := validation.NormalizePhone(phone)
	if err != nil {
		return nil, err
	}

	if g.permissive {
		return &models.RemoteProfile{}, nil
	}

	patient, ok := g.patients[normalized]
	if !ok {
		return nil, gateway.ErrProfileNotFound
	}

	if docDigits != "" && !strings.HasSuffix(digitsOnly(patient.DocNumber), digitsOnly(docDigits)) {
		return nil, gateway.ErrProfileNotFound
	}

	profile := patient.Profile
	return &profile, nil
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, s)
}
