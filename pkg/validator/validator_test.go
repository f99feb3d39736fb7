package validator

import (
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	v := New()
	if v == nil {
		t.Fatal("expected validator to be created")
	}
	if v.validate == nil {
		t.Fatal("expected internal validator to be initialized")
	}
}

func TestValidate_RequiredField(t *testing.T) {
	v := New()

	type TestStruct struct {
		Name string `validate:"required"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{
			name:    "valid - name provided",
			input:   TestStruct{Name: "test"},
			wantErr: false,
		},
		{
			name:    "invalid - name empty",
			input:   TestStruct{Name: ""},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateScanTier(t *testing.T) {
	v := New()

	type TestStruct struct {
		Tier string `validate:"required,scan_tier"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "valid - fast", input: TestStruct{Tier: "fast"}, wantErr: false},
		{name: "valid - deep", input: TestStruct{Tier: "deep"}, wantErr: false},
		{name: "invalid - unknown tier", input: TestStruct{Tier: "thorough"}, wantErr: true},
		{name: "invalid - uppercase", input: TestStruct{Tier: "FAST"}, wantErr: true},
		{name: "invalid - empty", input: TestStruct{Tier: ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateScanSource(t *testing.T) {
	v := New()

	type TestStruct struct {
		Source string `validate:"required,scan_source"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "valid - upload", input: TestStruct{Source: "upload"}, wantErr: false},
		{name: "valid - github", input: TestStruct{Source: "github"}, wantErr: false},
		{name: "valid - s3", input: TestStruct{Source: "s3"}, wantErr: false},
		{name: "invalid - gitlab", input: TestStruct{Source: "gitlab"}, wantErr: true},
		{name: "invalid - empty", input: TestStruct{Source: ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRepoURL(t *testing.T) {
	v := New()

	type TestStruct struct {
		URL string `validate:"required,repo_url"`
	}

	tests := []struct {
		name    string
		input   TestStruct
		wantErr bool
	}{
		{name: "valid - https", input: TestStruct{URL: "https://github.com/acme/app"}, wantErr: false},
		{name: "valid - https with .git", input: TestStruct{URL: "https://github.com/acme/app.git"}, wantErr: false},
		{name: "valid - ssh", input: TestStruct{URL: "git@github.com:acme/app.git"}, wantErr: false},
		{name: "valid - short form", input: TestStruct{URL: "github.com/acme/app"}, wantErr: false},
		{name: "valid - self-hosted", input: TestStruct{URL: "https://git.internal.example.com/platform/api"}, wantErr: false},
		{name: "invalid - ftp scheme", input: TestStruct{URL: "ftp://github.com/acme/app"}, wantErr: true},
		{name: "invalid - missing repo", input: TestStruct{URL: "https://github.com/acme"}, wantErr: true},
		{name: "invalid - plain word", input: TestStruct{URL: "not-a-repo"}, wantErr: true},
		{name: "invalid - empty", input: TestStruct{URL: ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ErrorMessages(t *testing.T) {
	v := New()

	type TestStruct struct {
		Tier    string `validate:"required,scan_tier"`
		Project string `validate:"required,uuid"`
	}

	err := v.Validate(TestStruct{Tier: "medium", Project: "nope"})
	if err == nil {
		t.Fatal("expected validation errors")
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 2 {
		t.Fatalf("expected 2 errors, got %d: %v", len(verrs), verrs)
	}

	msg := verrs.Error()
	if !strings.Contains(msg, "tier: must be one of: fast, deep") {
		t.Errorf("expected tier message, got %q", msg)
	}
	if !strings.Contains(msg, "project: must be a valid UUID") {
		t.Errorf("expected project message, got %q", msg)
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ProjectID", "project_i_d"},
		{"Tier", "tier"},
		{"RepoURL", "repo_u_r_l"},
		{"name", "name"},
	}

	for _, tt := range tests {
		if got := toSnakeCase(tt.in); got != tt.want {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
