package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// loadHCLConfig parses an HCL configuration file into cfg. The file uses
// attribute syntax only, mirroring the JSON structure:
//
//	listen-address = "127.0.0.1:8080"
//	redirect = { authority = "upstream.example" }
//	filter = { mode = "whitelist", addresses = ["127.0.0.1:9000"] }
func loadHCLConfig(configPath string, cfg *Config) error {
	cleanPath := filepath.Clean(configPath)
	if !filepath.IsAbs(cleanPath) {
		absPath, err := filepath.Abs(cleanPath)
		if err != nil {
			return fmt.Errorf("invalid config file path: %w", err)
		}
		cleanPath = absPath
	}
	src, err := os.ReadFile(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, cleanPath)
	if diags.HasErrors() {
		return fmt.Errorf("failed to parse HCL config: %s", diags.Error())
	}

	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return fmt.Errorf("failed to read HCL attributes: %s", diags.Error())
	}

	data := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		value, err := evalAttribute(attr)
		if err != nil {
			return err
		}
		data[name] = value
	}

	return applyConfigMap(cfg, data)
}

func evalAttribute(attr *hcl.Attribute) (any, error) {
	value, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate %q: %s", attr.Name, diags.Error())
	}
	return ctyToGo(attr.Name, value)
}

// ctyToGo converts a cty value into the map/slice/scalar shape shared with
// the JSON loader.
func ctyToGo(name string, value cty.Value) (any, error) {
	if value.IsNull() {
		return nil, fmt.Errorf("null value for %q", name)
	}

	ty := value.Type()
	switch {
	case ty == cty.String:
		return value.AsString(), nil
	case ty == cty.Bool:
		return value.True(), nil
	case ty == cty.Number:
		f, _ := value.AsBigFloat().Float64()
		return f, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		var result []any
		it := value.ElementIterator()
		for it.Next() {
			_, element := it.Element()
			converted, err := ctyToGo(name, element)
			if err != nil {
				return nil, err
			}
			result = append(result, converted)
		}
		return result, nil
	case ty.IsObjectType() || ty.IsMapType():
		result := make(map[string]any)
		it := value.ElementIterator()
		for it.Next() {
			key, element := it.Element()
			converted, err := ctyToGo(name+"."+key.AsString(), element)
			if err != nil {
				return nil, err
			}
			result[key.AsString()] = converted
		}
		return result, nil
	default:
		return nil, fmt.Errorf("unsupported HCL value type %s for %q", ty.FriendlyName(), name)
	}
}
