package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("Validation errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("Validation warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

// ValidateConfigWithDetails performs validation with detailed feedback.
// Missing source directories are warnings: absent roots are skipped at build time.
func ValidateConfigWithDetails(config *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:    true,
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validateRootsDetails(config.Roots, result)
	validateBundleDetails(&config.Bundle, result)
	validateCompileDetails(&config.Compile, result)
	validateWatchDetails(&config.Watch, result)

	result.Valid = !result.HasErrors()

	return result
}

func validateRootsDetails(roots []RootConfig, result *ValidationResult) {
	seenDest := make(map[string]string)
	for i, root := range roots {
		field := fmt.Sprintf("roots[%d]", i)

		if err := validatePath(root.Src); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       field + ".src",
				Value:       root.Src,
				Message:     err.Error(),
				Suggestions: []string{"Use a directory inside the project, e.g. 'client'"},
			})
		} else if _, err := os.Stat(root.Src); err != nil {
			result.Warnings = append(result.Warnings, ValidationError{
				Field:   field + ".src",
				Value:   root.Src,
				Message: "source directory does not exist and will be skipped",
			})
		}

		if err := validatePath(root.Dest); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Field:       field + ".dest",
				Value:       root.Dest,
				Message:     err.Error(),
				Suggestions: []string{"Use a directory inside the project, e.g. 'client-dist'"},
			})
		} else if filepath.Clean(root.Dest) == filepath.Clean(root.Src) {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".dest",
				Value:   root.Dest,
				Message: "destination must differ from source",
			})
		} else if other, dup := seenDest[filepath.Clean(root.Dest)]; dup {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field + ".dest",
				Value:   root.Dest,
				Message: fmt.Sprintf("destination already used by root %q", other),
			})
		} else {
			seenDest[filepath.Clean(root.Dest)] = root.Name
		}

		if root.Strategy != StrategyBundle && root.Strategy != StrategySeparate {
			result.Errors = append(result.Errors, ValidationError{
				Field:       field + ".strategy",
				Value:       root.Strategy,
				Message:     fmt.Sprintf("unknown strategy %q", root.Strategy),
				Suggestions: []string{"Use 'bundle' for browser trees", "Use 'separate' for server trees"},
			})
		}
	}
}

func validateBundleDetails(config *BundleConfig, result *ValidationResult) {
	validateTargetFormat("bundle", config.Target, config.Format, result)

	if config.Concurrency < 1 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "bundle.concurrency",
			Value:   config.Concurrency,
			Message: "concurrency must be at least 1",
		})
	}
	if len(config.Extensions) == 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "bundle.extensions",
			Message:     "no entry-point extensions configured",
			Suggestions: []string{"Use [.ts, .tsx]"},
		})
	}
	if slices.Contains(config.Extensions, ".js") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "bundle.extensions",
			Value:   ".js",
			Message: "compiled output uses .js; it cannot also be an entry-point extension",
		})
	}
}

func validateCompileDetails(config *CompileConfig, result *ValidationResult) {
	validateTargetFormat("compile", config.Target, config.Format, result)

	if slices.Contains(config.Extensions, ".js") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "compile.extensions",
			Value:   ".js",
			Message: "compiled output uses .js; it cannot also be a compiled extension",
		})
	}
}

func validateTargetFormat(section, target, format string, result *ValidationResult) {
	if !slices.Contains(ValidTargets, strings.ToLower(target)) {
		result.Errors = append(result.Errors, ValidationError{
			Field:       section + ".target",
			Value:       target,
			Message:     fmt.Sprintf("unknown target %q", target),
			Suggestions: []string{"Valid targets: " + strings.Join(ValidTargets, ", ")},
		})
	}
	if !slices.Contains(ValidFormats, strings.ToLower(format)) {
		result.Errors = append(result.Errors, ValidationError{
			Field:       section + ".format",
			Value:       format,
			Message:     fmt.Sprintf("unknown format %q", format),
			Suggestions: []string{"Valid formats: " + strings.Join(ValidFormats, ", ")},
		})
	}
}

func validateWatchDetails(config *WatchConfig, result *ValidationResult) {
	if config.Backend != WatchBackendFSNotify && config.Backend != WatchBackendNone {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "watch.backend",
			Value:       config.Backend,
			Message:     fmt.Sprintf("unknown watch backend %q", config.Backend),
			Suggestions: []string{"Use 'fsnotify' or 'none'"},
		})
	}
	if config.Stability < 0 {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "watch.stability",
			Value:   config.Stability,
			Message: "stability window cannot be negative",
		})
	}
}
