package config

import (
	"testing"
)

func TestGenerate_AllTemplatesValidate(t *testing.T) {
	for _, id := range AllTemplateIDs() {
		t.Run(id.String(), func(t *testing.T) {
			if !id.IsValid() {
				t.Fatalf("IsValid() = false")
			}

			data, err := Generate(id)
			if err != nil {
				t.Fatalf("Generate() error = %v", err)
			}

			result := Validate(data, id.String())
			if !result.Valid {
				t.Fatalf("template does not validate: %+v\n%s", result.Issues, data)
			}

			cfg, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if _, err := cfg.ToAuthenticatorConfig(); err != nil {
				t.Errorf("ToAuthenticatorConfig() error = %v", err)
			}
			if _, err := cfg.IssueLimiterConfig(); err != nil {
				t.Errorf("IssueLimiterConfig() error = %v", err)
			}
		})
	}
}

func TestGenerate_Unknown(t *testing.T) {
	if TemplateID("enterprise").IsValid() {
		t.Error("unknown template reported valid")
	}
	if _, err := Generate("enterprise"); err == nil {
		t.Error("Generate() should fail for unknown template")
	}
}

func TestGetTemplate(t *testing.T) {
	tmpl, ok := GetTemplate(TemplateSNS)
	if !ok {
		t.Fatal("GetTemplate(sns) not found")
	}
	if tmpl.ID != TemplateSNS || tmpl.Description == "" {
		t.Errorf("GetTemplate() = %+v", tmpl)
	}
}
