package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"gopkg.in/yaml.v3"

	v0 "github.com/agentregistry-dev/mcpindex/internal/registry/api/handlers/v0"
	"github.com/agentregistry-dev/mcpindex/internal/registry/api/router"
	"github.com/agentregistry-dev/mcpindex/internal/version"
)

func main() {
	outputPath := flag.String("output", "openapi.yaml", "Output path for the OpenAPI document (.json writes JSON, anything else YAML)")
	versionOverride := flag.String("version", "", "Override the API version (defaults to version.Version)")
	flag.Parse()

	apiVersion := version.Version
	if *versionOverride != "" {
		apiVersion = *versionOverride
	}

	data, err := encodeSpec(generateSpec(apiVersion), *outputPath)
	if err != nil {
		log.Fatalf("Failed to encode OpenAPI spec: %v", err)
	}

	if err := os.WriteFile(*outputPath, data, 0644); err != nil {
		log.Fatalf("Failed to write OpenAPI spec to %s: %v", *outputPath, err)
	}

	absPath, err := filepath.Abs(*outputPath)
	if err != nil {
		absPath = *outputPath
	}
	fmt.Printf("OpenAPI spec generated: %s\n", absPath)
}

// encodeSpec writes JSON for a .json output path and YAML otherwise.
func encodeSpec(spec *huma.OpenAPI, outputPath string) ([]byte, error) {
	if strings.EqualFold(filepath.Ext(outputPath), ".json") {
		return json.MarshalIndent(spec, "", "  ")
	}
	return yaml.Marshal(spec)
}

// generateSpec registers every route on a throwaway API and returns its
// OpenAPI document. The registry and job manager are only captured by handler
// closures, so nil is safe here.
func generateSpec(apiVersion string) *huma.OpenAPI {
	api := humago.New(http.NewServeMux(), router.HumaConfig(apiVersion))
	router.RegisterRoutes(api, nil, nil, nil, v0.ErrorConfig{})
	return api.OpenAPI()
}
