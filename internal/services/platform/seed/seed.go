// Package seed loads YAML fixtures into the platform API.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	apperrors "github.com/captify/captify/internal/platform/errors"
	"github.com/captify/captify/internal/services/platform/domain"
	"github.com/captify/captify/internal/services/shared/apiclient"
)

// Fixture lists the records to seed. Tables holds generic items keyed by table
// name; Ontology holds entities keyed by collection.
type Fixture struct {
	Tables   map[string][]map[string]any `yaml:"tables"`
	Ontology map[string][]map[string]any `yaml:"ontology"`
}

// Summary counts what Apply wrote.
type Summary struct {
	Items    int
	Entities int
	Skipped  int
}

// Load reads a fixture file.
func Load(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read seed fixture: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a YAML fixture.
func Parse(raw []byte) (Fixture, error) {
	var fixture Fixture
	if err := yaml.Unmarshal(raw, &fixture); err != nil {
		return Fixture{}, fmt.Errorf("parse seed fixture: %w", err)
	}
	return fixture, nil
}

// Apply writes fixture through runner. Tables are written with put, so
// re-seeding overwrites. Entities whose slug already exists are skipped.
func Apply(ctx context.Context, runner apiclient.Runner, fixture Fixture, logger *zap.Logger) (Summary, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var summary Summary

	for _, table := range sortedKeys(fixture.Tables) {
		for i, item := range fixture.Tables[table] {
			req := apiclient.Request{
				Service:   domain.ServiceDynamo,
				Operation: domain.OpPut,
				Table:     table,
				Data:      map[string]any{"item": item},
			}
			if err := apiclient.RunAck(ctx, runner, req); err != nil {
				return summary, fmt.Errorf("seed %s[%d]: %w", table, i, err)
			}
			summary.Items++
		}
	}

	for _, collection := range sortedKeys(fixture.Ontology) {
		for i, entity := range fixture.Ontology[collection] {
			req := apiclient.Request{
				Service:   domain.ServiceOntology,
				Operation: domain.OpCreate,
				Table:     collection,
				Data:      map[string]any{"item": entity},
			}
			err := apiclient.RunAck(ctx, runner, req)
			if alreadySeeded(err) {
				summary.Skipped++
				continue
			}
			if err != nil {
				return summary, fmt.Errorf("seed %s[%d]: %w", collection, i, err)
			}
			summary.Entities++
		}
	}

	logger.Info("seed applied",
		zap.Int("items", summary.Items),
		zap.Int("entities", summary.Entities),
		zap.Int("skipped", summary.Skipped),
	)
	return summary, nil
}

func alreadySeeded(err error) bool {
	var rejected *apiclient.RejectedError
	return errors.As(err, &rejected) && strings.EqualFold(rejected.Code, string(apperrors.CodeAlreadyExists))
}

func sortedKeys(m map[string][]map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
