package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ghyeongl/freeze/engine"
)

// toolDef describes one tool in the tools/list response.
type toolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// toolResult is the tools/call payload.
type toolResult struct {
	Content []contentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textResult(text string) *toolResult {
	return &toolResult{Content: []contentBlock{{Type: "text", Text: text}}}
}

func errorResult(err error) *toolResult {
	return &toolResult{Content: []contentBlock{{Type: "text", Text: err.Error()}}, IsError: true}
}

func jsonResult(v any) *toolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return textResult(string(data))
}

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func strProp(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func boolProp(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func toolDefinitions() []toolDef {
	return []toolDef{
		{
			Name:        "freeze_save",
			Description: "Save a point-in-time snapshot of a file or directory",
			InputSchema: schema([]string{"path"}, map[string]any{
				"path": strProp("File or directory to snapshot"),
			}),
		},
		{
			Name:        "freeze_restore",
			Description: "Restore a file or directory from a snapshot. Omit checksum for the most recent one",
			InputSchema: schema([]string{"path"}, map[string]any{
				"path":     strProp("Path to restore"),
				"checksum": strProp("Checksum prefix of the snapshot or file version"),
			}),
		},
		{
			Name:        "freeze_list",
			Description: "List all snapshots",
			InputSchema: schema(nil, map[string]any{}),
		},
		{
			Name:        "freeze_list_directory",
			Description: "List snapshots rooted at or beneath a directory",
			InputSchema: schema([]string{"path"}, map[string]any{
				"path": strProp("Directory to list under"),
			}),
		},
		{
			Name:        "freeze_search",
			Description: "Search snapshots by root path substring or entry path substring/glob",
			InputSchema: schema([]string{"pattern"}, map[string]any{
				"pattern": strProp("Substring or glob pattern"),
			}),
		},
		{
			Name:        "freeze_check",
			Description: "Check whether a path changed since its most recent snapshot",
			InputSchema: schema([]string{"path"}, map[string]any{
				"path": strProp("Path to check"),
			}),
		},
		{
			Name:        "freeze_view",
			Description: "View a snapshot's entry listing, with a content preview for single files",
			InputSchema: schema([]string{"selector"}, map[string]any{
				"selector": strProp("Path or checksum prefix"),
			}),
		},
		{
			Name:        "freeze_export",
			Description: "Export snapshot content into a directory without touching the original location",
			InputSchema: schema([]string{"selector", "dest"}, map[string]any{
				"selector": strProp("Path or checksum prefix"),
				"dest":     strProp("Destination directory"),
			}),
		},
		{
			Name:        "freeze_clear",
			Description: "Delete snapshots and their unreferenced content",
			InputSchema: schema(nil, map[string]any{
				"path": strProp("Delete snapshots rooted at or beneath this directory"),
				"all":  boolProp("Delete every snapshot"),
			}),
		},
		{
			Name:        "freeze_snapshot_info",
			Description: "Show the snapshot history of a path with per-version change counts",
			InputSchema: schema([]string{"path"}, map[string]any{
				"path": strProp("Path to inspect"),
			}),
		},
		{
			Name:        "freeze_compare",
			Description: "Line diff between two stored checksums, or a checksum and the current file ('current')",
			InputSchema: schema([]string{"source", "target"}, map[string]any{
				"source": strProp("Checksum prefix or 'current'"),
				"target": strProp("Checksum prefix or 'current'"),
				"path":   strProp("Live file path, required when a side is 'current'"),
			}),
		},
		{
			Name:        "freeze_exclusion_add",
			Description: "Add an exclusion rule applied to every save and restore",
			InputSchema: schema([]string{"pattern"}, map[string]any{
				"pattern": strProp("Pattern to exclude"),
				"type":    strProp("Rule type: glob, extension or exact (default glob)"),
			}),
		},
		{
			Name:        "freeze_exclusion_list",
			Description: "List exclusion rules",
			InputSchema: schema(nil, map[string]any{}),
		},
		{
			Name:        "freeze_exclusion_remove",
			Description: "Remove an exclusion rule by pattern",
			InputSchema: schema([]string{"pattern"}, map[string]any{
				"pattern": strProp("Pattern to remove"),
			}),
		},
	}
}

// callTool executes one named tool. Engine failures come back as tool
// results with isError set, not RPC errors.
func (s *Server) callTool(name string, args json.RawMessage) (*toolResult, *rpcError) {
	var a struct {
		Path     string `json:"path"`
		Checksum string `json:"checksum"`
		Pattern  string `json:"pattern"`
		Selector string `json:"selector"`
		Dest     string `json:"dest"`
		Source   string `json:"source"`
		Target   string `json:"target"`
		Type     string `json:"type"`
		All      bool   `json:"all"`
	}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, &rpcError{Code: codeInvalidParams, Message: "invalid arguments"}
		}
	}

	switch name {
	case "freeze_save":
		snap, err := s.mgr.Save(a.Path)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("saved snapshot %d of %s (%d files, %s, checksum %s)",
			snap.ID, snap.Root, snap.FileCount, humanize.Bytes(uint64(snap.Size)), snap.Checksum[:12])), nil

	case "freeze_restore":
		n, err := s.mgr.Restore(a.Path, a.Checksum)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("restored %d file(s) to %s", n, a.Path)), nil

	case "freeze_list":
		snaps, err := s.mgr.List()
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(snaps), nil

	case "freeze_list_directory":
		snaps, err := s.mgr.ListUnder(a.Path)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(snaps), nil

	case "freeze_search":
		results, err := s.mgr.Search(a.Pattern)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(results), nil

	case "freeze_check":
		result, err := s.mgr.Check(a.Path)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(result), nil

	case "freeze_view":
		view, err := s.mgr.View(a.Selector)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(view), nil

	case "freeze_export":
		n, err := s.mgr.Export(a.Selector, a.Dest)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("exported %d file(s) to %s", n, a.Dest)), nil

	case "freeze_clear":
		if !a.All && a.Path == "" {
			return errorResult(fmt.Errorf("path or all required")), nil
		}
		stats, err := s.mgr.Clear(a.Path, a.All)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("cleared %d snapshot(s), %d blob(s)", stats.Snapshots, stats.Blobs)), nil

	case "freeze_snapshot_info":
		history, err := s.mgr.Inspect(a.Path)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(history), nil

	case "freeze_compare":
		src, err := compareSource(a.Source, a.Path)
		if err != nil {
			return errorResult(err), nil
		}
		dst, err := compareSource(a.Target, a.Path)
		if err != nil {
			return errorResult(err), nil
		}
		result, err := s.mgr.Compare(src, dst)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(renderDiff(result)), nil

	case "freeze_exclusion_add":
		ruleType := a.Type
		if ruleType == "" {
			ruleType = engine.RuleGlob
		}
		if !engine.ValidRuleType(ruleType) {
			return errorResult(fmt.Errorf("invalid rule type: %s", ruleType)), nil
		}
		if err := s.mgr.ExclusionAdd(a.Pattern, ruleType); err != nil {
			return errorResult(err), nil
		}
		return textResult(fmt.Sprintf("exclusion added: %s (%s)", a.Pattern, ruleType)), nil

	case "freeze_exclusion_list":
		rules, err := s.mgr.ExclusionList()
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(rules), nil

	case "freeze_exclusion_remove":
		removed, err := s.mgr.ExclusionRemove(a.Pattern)
		if err != nil {
			return errorResult(err), nil
		}
		if !removed {
			return errorResult(fmt.Errorf("exclusion not found: %s", a.Pattern)), nil
		}
		return textResult(fmt.Sprintf("exclusion removed: %s", a.Pattern)), nil
	}

	return nil, &rpcError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool: %s", name)}
}

// compareSource maps a tool argument to a ContentSource. The literal
// "current" selects the live file at path.
func compareSource(side, path string) (engine.ContentSource, error) {
	if side == "current" {
		if path == "" {
			return engine.ContentSource{}, fmt.Errorf("path required when comparing against current")
		}
		return engine.ContentSource{Path: path}, nil
	}
	if side == "" {
		return engine.ContentSource{}, fmt.Errorf("source and target required")
	}
	return engine.ContentSource{Checksum: side}, nil
}

// renderDiff formats a diff result as unified-style text.
func renderDiff(result *engine.DiffResult) string {
	if result.Identical {
		return "contents are identical"
	}
	if result.Binary {
		return "binary contents differ"
	}
	var b strings.Builder
	for _, op := range result.Ops {
		switch op.Kind {
		case engine.DiffAdd:
			b.WriteString("+ ")
		case engine.DiffRemove:
			b.WriteString("- ")
		default:
			b.WriteString("  ")
		}
		b.WriteString(op.Line)
		b.WriteByte('\n')
	}
	return b.String()
}
