package server

import (
	"bufio"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// logPath resolves the single application log file under DataDir,
// grounded on the teacher's LogHandlers but collapsed to one file. The
// logger in pkg/logger writes to stdout only; this process does not
// write or rotate this file itself.
func (s *Server) logPath() string {
	return filepath.Join(s.deps.DataDir, "logs", "gridtrader.log")
}

// readLastLines returns up to n trailing lines of path, oldest first.
// Grounded on the teacher's chunked reverse-seek reader, simplified to a
// single bufio.Scanner pass that reads the whole file on every call.
func readLastLines(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var all []string
	for scanner.Scan() {
		all = append(all, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}

func filterLines(lines []string, level, search string) []string {
	if level == "" && search == "" {
		return lines
	}
	out := make([]string, 0, len(lines))
	level = strings.ToUpper(level)
	search = strings.ToLower(search)
	for _, line := range lines {
		if level != "" && !strings.Contains(strings.ToLower(line), `"level":"`+strings.ToLower(level)+`"`) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(line), search) {
			continue
		}
		out = append(out, line)
	}
	return out
}

// handleLogsGet implements GET /api/logs?lines=N&level=&search=.
func (s *Server) handleLogsGet(w http.ResponseWriter, r *http.Request) {
	lines := 200
	if raw := r.URL.Query().Get("lines"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			lines = parsed
		}
		if lines > 10000 {
			lines = 10000
		}
	}

	all, err := readLastLines(s.logPath(), lines)
	if os.IsNotExist(err) {
		writeOK(w, map[string]interface{}{"lines": []string{}, "total": 0, "filtered": 0})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	filtered := filterLines(all, r.URL.Query().Get("level"), r.URL.Query().Get("search"))
	writeOK(w, map[string]interface{}{"lines": filtered, "total": len(all), "filtered": len(filtered)})
}

// handleLogsClear implements POST /api/logs/clear: truncates the log
// file in place so the process's open file handle keeps writing to it.
func (s *Server) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	f, err := os.OpenFile(s.logPath(), os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			writeOK(w, nil)
			return
		}
		writeError(w, err)
		return
	}
	defer f.Close()
	writeOK(w, nil)
}
