//go:build js && wasm

package main

import (
	"encoding/json"
	"syscall/js"

	"cyberbook/config"
	"cyberbook/internal/adapter/analyzer"
	"cyberbook/internal/domain"
	"cyberbook/internal/search"
)

var engine *search.Engine

func init() {
	cfg := config.DefaultConfig()
	engine = search.NewEngine(analyzer.NewTokenizer(cfg.Search.Stemming), cfg.Search)
}

func main() {
	c := make(chan struct{})

	js.Global().Set("cbIndex", js.FuncOf(indexDocument))
	js.Global().Set("cbRemove", js.FuncOf(removeDocument))
	js.Global().Set("cbSearch", js.FuncOf(searchDocuments))
	js.Global().Set("cbSuggest", js.FuncOf(suggest))
	js.Global().Set("cbStats", js.FuncOf(getStats))

	<-c
}

// cbIndex(entryJSON, content) where entryJSON is a manifest entry.
func indexDocument(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return makeError("usage: cbIndex(entryJSON, content)")
	}

	var entry domain.ManifestEntry
	if err := json.Unmarshal([]byte(args[0].String()), &entry); err != nil {
		return makeError("invalid entry: " + err.Error())
	}
	if entry.Slug == "" {
		return makeError("entry has no slug")
	}

	content := entry.Title + "\n" + args[1].String()
	if err := engine.IndexDocument(entry.Slug, content, entry.Metadata()); err != nil {
		return makeError("indexing failed: " + err.Error())
	}
	return makeResult(map[string]interface{}{
		"success": true,
		"slug":    entry.Slug,
	})
}

func removeDocument(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: cbRemove(slug)")
	}
	return makeResult(map[string]interface{}{
		"removed": engine.RemoveDocument(args[0].String()),
	})
}

// cbSearch(query, [optionsJSON]) with options {limit, offset, fuzzy, filters}.
func searchDocuments(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: cbSearch(query, [optionsJSON])")
	}

	var opts []search.SearchOption
	if len(args) > 1 && args[1].Type() == js.TypeString {
		var o struct {
			Limit   int            `json:"limit"`
			Offset  int            `json:"offset"`
			Fuzzy   *bool          `json:"fuzzy"`
			Filters map[string]any `json:"filters"`
		}
		if err := json.Unmarshal([]byte(args[1].String()), &o); err != nil {
			return makeError("invalid options: " + err.Error())
		}
		if o.Limit > 0 {
			opts = append(opts, search.WithLimit(o.Limit))
		}
		if o.Offset > 0 {
			opts = append(opts, search.WithOffset(o.Offset))
		}
		if o.Fuzzy != nil {
			opts = append(opts, search.WithFuzzy(*o.Fuzzy))
		}
		if len(o.Filters) > 0 {
			opts = append(opts, search.WithFilters(o.Filters))
		}
	}

	result, _ := json.Marshal(engine.Search(args[0].String(), opts...))
	return string(result)
}

func suggest(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return makeError("usage: cbSuggest(prefix, [limit])")
	}
	limit := 5
	if len(args) > 1 {
		limit = args[1].Int()
	}
	result, _ := json.Marshal(engine.GetSuggestions(args[0].String(), limit))
	return string(result)
}

func getStats(this js.Value, args []js.Value) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"index":     engine.Stats(),
		"analytics": engine.Analytics(),
	})
	return string(result)
}

func makeError(msg string) interface{} {
	result, _ := json.Marshal(map[string]interface{}{
		"error": msg,
	})
	return string(result)
}

func makeResult(data map[string]interface{}) interface{} {
	result, _ := json.Marshal(data)
	return string(result)
}
