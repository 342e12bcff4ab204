package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/dmitrymomot/pushkit/pkg/push"
)

// vapidKeys prints a new application server key pair in .env form.
func vapidKeys(w io.Writer, args []string) error {
	fs := flag.NewFlagSet("vapid-keys", flag.ContinueOnError)
	fs.SetOutput(w)
	subject := fs.String("subject", "", "contact address for VAPID_EMAIL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	public, private, err := push.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generate vapid keys: %w", err)
	}

	fmt.Fprintf(w, "VAPID_PUBLIC_KEY=%s\n", public)
	fmt.Fprintf(w, "VAPID_PRIVATE_KEY=%s\n", private)
	if *subject != "" {
		fmt.Fprintf(w, "VAPID_EMAIL=%s\n", *subject)
	}
	return nil
}
