package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/ehr/ehrsync/internal/domain/client"
	"github.com/ehr/ehrsync/internal/domain/ehrconfig"
	"github.com/ehr/ehrsync/pkg/fhirmodels"
)

// seedFile is the layout of `client seed --file`:
//
//	clients:
//	  - name: Lakeside Clinic
//	    configurations:
//	      - ehr_system: EPIC
//	        api_endpoint: https://fhir.epic.example/api/FHIR/R4
//	        client_id: abc
//	        client_secret: s3cret
type seedFile struct {
	Clients []seedClient `yaml:"clients"`
}

type seedClient struct {
	ID             string       `yaml:"id"`
	Name           string       `yaml:"name"`
	Status         string       `yaml:"status"`
	Configurations []seedConfig `yaml:"configurations"`
}

type seedConfig struct {
	EHRSystem        string         `yaml:"ehr_system"`
	APIEndpoint      string         `yaml:"api_endpoint"`
	ClientID         string         `yaml:"client_id"`
	ClientSecret     string         `yaml:"client_secret"`
	AdditionalConfig map[string]any `yaml:"additional_config"`
}

type seedResult struct {
	Clients        int
	Configurations int
}

func loadSeed(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if len(seed.Clients) == 0 {
		return nil, fmt.Errorf("seed file %s lists no clients", path)
	}
	return &seed, nil
}

type clientStore interface {
	ListClients(ctx context.Context, status string) ([]*client.Client, error)
	SaveClient(ctx context.Context, c *client.Client) error
}

type configStore interface {
	SaveConfiguration(ctx context.Context, cfg *ehrconfig.Configuration) error
}

// applySeed upserts every client and configuration in seed. Clients without
// an id reuse the id of an existing client with the same name.
func applySeed(ctx context.Context, clients clientStore, configs configStore, seed *seedFile) (seedResult, error) {
	var res seedResult

	existing, err := clients.ListClients(ctx, "")
	if err != nil {
		return res, fmt.Errorf("list clients: %w", err)
	}
	byName := make(map[string]uuid.UUID, len(existing))
	for _, c := range existing {
		byName[strings.ToLower(c.Name)] = c.ID
	}

	for i, sc := range seed.Clients {
		c := &client.Client{Name: sc.Name, Status: sc.Status}
		switch {
		case sc.ID != "":
			id, err := uuid.Parse(sc.ID)
			if err != nil {
				return res, fmt.Errorf("clients[%d]: invalid id %q", i, sc.ID)
			}
			c.ID = id
		default:
			c.ID = byName[strings.ToLower(strings.TrimSpace(sc.Name))]
		}
		if err := clients.SaveClient(ctx, c); err != nil {
			return res, fmt.Errorf("clients[%d] %s: %w", i, sc.Name, err)
		}
		res.Clients++

		for j, scfg := range sc.Configurations {
			system, err := fhirmodels.ParseEHRSystem(scfg.EHRSystem)
			if err != nil {
				return res, fmt.Errorf("clients[%d].configurations[%d]: %w", i, j, err)
			}
			cfg := &ehrconfig.Configuration{
				ClientID:           c.ID,
				EHRSystem:          system,
				APIEndpoint:        scfg.APIEndpoint,
				ClientIDCredential: scfg.ClientID,
				ClientSecret:       scfg.ClientSecret,
				AdditionalConfig:   scfg.AdditionalConfig,
			}
			if err := configs.SaveConfiguration(ctx, cfg); err != nil {
				return res, fmt.Errorf("clients[%d].configurations[%d]: %w", i, j, err)
			}
			res.Configurations++
		}
	}
	return res, nil
}
