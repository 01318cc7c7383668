package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

// LowerTestSpec is one case of testdata/lower.yaml
type LowerTestSpec struct {
	Name        string   `yaml:"name"`
	Input       string   `yaml:"input"`
	Flags       []string `yaml:"flags"`
	Expect      []string `yaml:"expect"`       // Strings that must appear in output
	ExpectOrder []string `yaml:"expect_order"` // Strings that must appear in this order
	ExpectNot   []string `yaml:"expect_not"`   // Strings that must NOT appear in output
	Error       string   `yaml:"error"`        // Expected failure message
	Skip        string   `yaml:"skip,omitempty"`
}

// LowerTestFile represents the lower.yaml file structure
type LowerTestFile struct {
	Tests []LowerTestSpec `yaml:"tests"`
}

func TestLowerYAML(t *testing.T) {
	data, err := os.ReadFile("../../testdata/lower.yaml")
	if err != nil {
		t.Fatalf("lower.yaml not found: %v", err)
	}

	var testFile LowerTestFile
	if err := yaml.Unmarshal(data, &testFile); err != nil {
		t.Fatalf("failed to parse lower.yaml: %v", err)
	}
	if len(testFile.Tests) == 0 {
		t.Fatal("lower.yaml has no tests")
	}

	for _, tc := range testFile.Tests {
		t.Run(tc.Name, func(t *testing.T) {
			if tc.Skip != "" {
				t.Skip(tc.Skip)
			}

			tmpDir := t.TempDir()
			testFile := filepath.Join(tmpDir, "test.yaml")
			if err := os.WriteFile(testFile, []byte(tc.Input), 0644); err != nil {
				t.Fatalf("failed to write test file: %v", err)
			}

			resetFlags()
			var out, errOut bytes.Buffer
			cmd := newRootCmd(&out, &errOut)
			args := append(append([]string{"--dnir"}, tc.Flags...), testFile)
			cmd.SetArgs(args)
			err := cmd.Execute()

			if tc.Error != "" {
				if err == nil {
					t.Fatalf("expected failure mentioning %q\nOutput:\n%s", tc.Error, out.String())
				}
				if !strings.Contains(errOut.String(), tc.Error) {
					t.Errorf("expected stderr to contain %q, got %q", tc.Error, errOut.String())
				}
				return
			}
			if err != nil {
				t.Fatalf("ralph-nir failed: %v\nStderr: %s", err, errOut.String())
			}

			output := out.String()
			for _, exp := range tc.Expect {
				if !strings.Contains(output, exp) {
					t.Errorf("expected output to contain %q\nGot:\n%s", exp, output)
				}
			}
			rest := output
			for _, exp := range tc.ExpectOrder {
				idx := strings.Index(rest, exp)
				if idx < 0 {
					t.Errorf("expected %q (in order)\nGot:\n%s", exp, output)
					break
				}
				rest = rest[idx+len(exp):]
			}
			for _, exp := range tc.ExpectNot {
				if strings.Contains(output, exp) {
					t.Errorf("expected output NOT to contain %q\nGot:\n%s", exp, output)
				}
			}
		})
	}
}
