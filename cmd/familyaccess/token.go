package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/weightlossprojectionlab/familyaccess/pkg/auth"
)

// runToken implements "familyaccess token": it mints a service token and
// prints the FAMILY_SERVICE_TOKENS entry that registers it. Only the hash
// belongs in configuration; the token itself is shown once.
func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	fs.SetOutput(out)
	userID := fs.String("user", "", "User id the token authenticates as (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	user := strings.TrimSpace(*userID)
	if user == "" {
		return fmt.Errorf("-user is required")
	}
	if strings.ContainsAny(user, ":,") {
		return fmt.Errorf("user id %q must not contain ':' or ','", user)
	}

	token, hash, err := auth.NewTokenGenerator().GenerateToken()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "token: %s\n", token)
	fmt.Fprintf(out, "hash:  %s\n", hash)
	fmt.Fprintf(out, "FAMILY_SERVICE_TOKENS=%s:%s\n", hash, user)
	return nil
}
