// Package cli formats command output for the ruiji CLI.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("invalid output format %q (use text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSimilarityResults writes ranked results for queryID to w.
func WriteSimilarityResults(w io.Writer, queryID, prompt string, response *models.SimilarityResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\n%d similar images to %s (prompt %q)\n\n", len(response.Results), queryID, prompt)
	if len(response.Results) == 0 {
		fmt.Fprintln(w, "No candidate had a stored embedding.")
		return nil
	}
	for i, r := range response.Results {
		fmt.Fprintf(w, "%3d. %-40s %8.4f\n", i+1, r.ImageID, r.Similarity)
	}
	fmt.Fprintln(w)
	return nil
}

// WriteImage writes an image record to w.
func WriteImage(w io.Writer, img *models.Image, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, img)
	}
	fmt.Fprintf(w, "ID:              %s\n", img.ID)
	fmt.Fprintf(w, "Prompt:          %s\n", img.Prompt)
	if img.ModifiedPrompt != "" && img.ModifiedPrompt != img.Prompt {
		fmt.Fprintf(w, "Modified prompt: %s\n", img.ModifiedPrompt)
	}
	fmt.Fprintf(w, "Object key:      %s\n", img.ObjectKey)
	fmt.Fprintf(w, "Embedding ID:    %s\n", img.EmbeddingID)
	if !img.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created:         %s\n", img.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	}
	if img.URL != "" {
		fmt.Fprintf(w, "URL:             %s\n", utils.Truncate(img.URL, 120))
	}
	return nil
}

// WriteEmbedding writes an embedding lookup result to w. Text output previews the vector.
func WriteEmbedding(w io.Writer, resp *models.EmbeddingResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Embedding %s (%s)\n", resp.EmbeddingID, resp.Source)
	fmt.Fprintf(w, "%s\n", utils.PreviewFloats(resp.Embedding, 8))
	return nil
}

// WriteGenerated writes the result of an image generation to w.
func WriteGenerated(w io.Writer, resp *models.GenerateResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Generated image %s\n", resp.ImageID)
	fmt.Fprintf(w, "  prompt:   %s\n", resp.BasePrompt)
	fmt.Fprintf(w, "  modified: %s\n", resp.ModifiedPrompt)
	return nil
}

// WriteUploaded writes the result of an image upload to w.
func WriteUploaded(w io.Writer, resp *models.UploadResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Uploaded image %s\n", resp.ImageID)
	return nil
}

// WriteStatus writes a status map to w. Nested maps are printed indented, keys sorted.
func WriteStatus(w io.Writer, status map[string]interface{}, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, status)
	}
	writeStatusLevel(w, status, "")
	return nil
}

func writeStatusLevel(w io.Writer, m map[string]interface{}, indent string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]interface{}:
			fmt.Fprintf(w, "%s%s:\n", indent, k)
			writeStatusLevel(w, v, indent+"  ")
		case []interface{}:
			fmt.Fprintf(w, "%s%s: %d\n", indent, k, len(v))
			for _, item := range v {
				fmt.Fprintf(w, "%s  - %v\n", indent, item)
			}
		case []string:
			fmt.Fprintf(w, "%s%s: %d\n", indent, k, len(v))
			for _, item := range v {
				fmt.Fprintf(w, "%s  - %s\n", indent, item)
			}
		case float64:
			// JSON numbers decode as float64
			if v == math.Trunc(v) {
				writeStatusInt(w, indent, k, int64(v))
				continue
			}
			fmt.Fprintf(w, "%s%s: %v\n", indent, k, v)
		case int64:
			writeStatusInt(w, indent, k, v)
		case int:
			writeStatusInt(w, indent, k, int64(v))
		default:
			fmt.Fprintf(w, "%s%s: %v\n", indent, k, v)
		}
	}
}

func writeStatusInt(w io.Writer, indent, k string, v int64) {
	if k == "disk_usage_bytes" {
		fmt.Fprintf(w, "%s%s: %s\n", indent, k, FormatBytes(v))
		return
	}
	fmt.Fprintf(w, "%s%s: %d\n", indent, k, v)
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
