package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// iniSection is the only section this daemon reads from its configuration
// file. gopkg.in/ini.v1's section/key model assumes `=`-only separators and
// doesn't recognize `:` as an alternative, so it can't parse this file's
// dialect without a pre-processing pass that would cost more than a direct
// scan; see DESIGN.md for the full rationale.
const iniSection = "xmlrpc_parser"

// LoadFile reads path and overlays its [xmlrpc_parser] keys onto cfg,
// returning the updated value. A missing file is not an error: the daemon
// runs on its built-in defaults and whatever the command line supplies.
func LoadFile(path string, cfg Config) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("op=config.LoadFile: %w", err)
	}
	defer f.Close()

	kv, err := parseINI(f)
	if err != nil {
		return cfg, fmt.Errorf("op=config.LoadFile: %w", err)
	}
	return applyINI(cfg, kv), nil
}

// parseINI scans r line by line, returning the key/value pairs found under
// the [xmlrpc_parser] section. Keys accept either `=` or `:` as separator;
// `#` starts a comment, whether on its own line or trailing a value.
func parseINI(r io.Reader) (map[string]string, error) {
	kv := make(map[string]string)
	inSection := false
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: unterminated section header", lineNo)
			}
			inSection = strings.TrimSpace(line[1:len(line)-1]) == iniSection
			continue
		}
		if !inSection {
			continue
		}
		key, val, ok := splitKV(line)
		if !ok {
			return nil, fmt.Errorf("line %d: expected key=value or key:value", lineNo)
		}
		kv[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(val)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return kv, nil
}

// stripComment removes a trailing `#` comment, respecting neither quoting
// nor escaping: this file's dialect has none.
func stripComment(line string) string {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		return line[:i]
	}
	return line
}

// splitKV splits line on whichever of `=` or `:` appears first.
func splitKV(line string) (key, val string, ok bool) {
	eq := strings.IndexByte(line, '=')
	colon := strings.IndexByte(line, ':')
	sep := eq
	if sep == -1 || (colon != -1 && colon < sep) {
		sep = colon
	}
	if sep == -1 {
		return "", "", false
	}
	return line[:sep], line[sep+1:], true
}

// applyINI overlays kv's keys onto cfg, leaving unset keys unchanged.
// Unparseable numeric values are left at cfg's prior value.
func applyINI(cfg Config, kv map[string]string) Config {
	if v, ok := kv["datadir"]; ok {
		cfg.DataDir = v
	}
	if v, ok := kv["xsltpath"]; ok {
		cfg.XSLTPath = v
	}
	if v, ok := kv["db_server"]; ok {
		cfg.DBServer = v
	}
	if v, ok := kv["db_port"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBPort = n
		}
	}
	if v, ok := kv["database"]; ok {
		cfg.Database = v
	}
	if v, ok := kv["db_username"]; ok {
		cfg.DBUsername = v
	}
	if v, ok := kv["db_password"]; ok {
		cfg.DBPassword = v
	}
	if v, ok := kv["reportdir"]; ok {
		cfg.ReportDir = v
	}
	if v, ok := kv["max_report_size"]; ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxReportSize = n
		}
	}
	return cfg
}
