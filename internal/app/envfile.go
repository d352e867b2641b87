package app

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/datalab-agent/analyst-go/pkg/logger"
)

// LoadEnvFile 从 dir 向上 (至多 5 层) 搜索 .env 并加载到环境变量。
// 只填充未设置的变量, 返回写入的变量数。
func LoadEnvFile(dir string) int {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return 0
		}
		dir = wd
	}
	for range 5 {
		envPath := filepath.Join(dir, ".env")
		if f, err := os.Open(envPath); err == nil {
			count := applyEnv(bufio.NewScanner(f))
			_ = f.Close()
			logger.Info("app: loaded .env file", logger.FieldPath, envPath, logger.FieldCount, count)
			return count
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return 0
}

func applyEnv(scanner *bufio.Scanner) int {
	count := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = unquote(strings.TrimSpace(val))
		if key == "" {
			continue
		}
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		if err := os.Setenv(key, val); err != nil {
			logger.Warn("app: setenv failed", "key", key, logger.FieldError, err)
			continue
		}
		count++
	}
	return count
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}
