package op_service

import (
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/urfave/cli/v2"
)

// PrefixEnvVar returns the env var name for name under prefix, as a one-element list for cli.Flag.EnvVars.
func PrefixEnvVar(prefix, suffix string) []string {
	return []string{prefix + "_" + suffix}
}

// ValidateEnvVars logs all env vars that look like they belong to the service (prefix)
// but do not correspond to any flag, and returns their names.
func ValidateEnvVars(prefix string, flags []cli.Flag, warn func(msg string, ctx ...any)) []string {
	known := make(map[string]struct{})
	for _, flag := range flags {
		for _, env := range flagEnvVars(flag) {
			known[env] = struct{}{}
		}
	}
	var unknown []string
	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(name, prefix+"_") {
			continue
		}
		if _, ok := known[name]; !ok {
			unknown = append(unknown, name)
			warn("Unknown env var", "prefix", prefix, "env_var", name)
		}
	}
	return unknown
}

// flagEnvVars reads the EnvVars field that all urfave/cli flag types carry.
func flagEnvVars(flag cli.Flag) []string {
	v := reflect.ValueOf(flag)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return nil
	}
	f := v.FieldByName("EnvVars")
	if !f.IsValid() {
		return nil
	}
	envs, ok := f.Interface().([]string)
	if !ok {
		panic(fmt.Errorf("flag %s has EnvVars of type %s", flag.Names()[0], f.Type()))
	}
	return envs
}
