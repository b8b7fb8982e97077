package rules

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load decodes YAML rule tables from r. Sections left out of the document
// keep their built-in values.
func Load(r io.Reader) (*Engine, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}

	t := DefaultTables()
	var doc Tables
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode rules: %w", err)
	}

	if doc.AutoResolve != nil {
		t.AutoResolve = doc.AutoResolve
	}
	if doc.Escalation.ThresholdHours != nil {
		t.Escalation.ThresholdHours = doc.Escalation.ThresholdHours
	}
	if doc.Escalation.DefaultHours != 0 {
		t.Escalation.DefaultHours = doc.Escalation.DefaultHours
	}
	if doc.Escalation.OverrideKeywords != nil {
		t.Escalation.OverrideKeywords = doc.Escalation.OverrideKeywords
	}
	if doc.Teams != nil {
		t.Teams = doc.Teams
	}
	if doc.DefaultTeam != "" {
		t.DefaultTeam = doc.DefaultTeam
	}
	if doc.SLA != nil {
		t.SLA = doc.SLA
	}

	return New(t)
}

// LoadFile reads rule tables from a YAML file. An empty path yields the
// built-in tables.
func LoadFile(path string) (*Engine, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rules file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return Load(f)
}
