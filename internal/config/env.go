package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables holding the login secrets.
const (
	EnvUsername   = "LINKEDIN_USERNAME"
	EnvPassword   = "LINKEDIN_PASSWORD"
	EnvForceLogin = "LINKEDIN_FORCE_LOGIN"
)

// LoadEnv loads a .env file (if any) into the process environment without
// overriding variables that are already set, then reads the credentials.
func (c *Config) LoadEnv(dotenvPaths ...string) error {
	if len(dotenvPaths) == 0 {
		dotenvPaths = []string{".env"}
	}
	for _, p := range dotenvPaths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	c.Credentials = Credentials{
		Username:   strings.TrimSpace(os.Getenv(EnvUsername)),
		Password:   os.Getenv(EnvPassword),
		ForceLogin: parseBool(os.Getenv(EnvForceLogin)),
	}
	return nil
}

func parseBool(s string) bool {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "yes" || s == "y" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
