// Provisions secrets into the badger store: the AES master key used for SMTP
// password encryption, or an arbitrary key/value read from stdin.
package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/vello/vello/pkg/secretstore"
)

func main() {
	_ = godotenv.Load()

	var (
		dir    = flag.String("dir", getenv("VELLO_SECRETS_DIR", "data/secrets"), "badger secret store directory")
		genKey = flag.Bool("gen-master-key", false, "generate and store a fresh 32-byte master key")
		setKey = flag.String("set", "", "store a value under this key (value read from stdin)")
		force  = flag.Bool("force", false, "overwrite an existing entry")
	)
	flag.Parse()

	encKey, err := secretstore.ParseKey(os.Getenv("VELLO_SECRETS_KEY"))
	if err != nil {
		fatal(fmt.Errorf("VELLO_SECRETS_KEY: %w", err))
	}
	store, err := secretstore.Open(secretstore.OpenOptions{Path: *dir, EncryptionKey: encKey})
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	switch {
	case *genKey:
		if err := generateMasterKey(store, *force); err != nil {
			fatal(err)
		}
	case *setKey != "":
		if err := storeValue(store, *setKey, *force); err != nil {
			fatal(err)
		}
	default:
		fatal(errors.New("nothing to do: pass -gen-master-key or -set <key>"))
	}
}

func generateMasterKey(store *secretstore.Store, force bool) error {
	const key = "smtp/master_key"
	if _, ok, err := store.GetString(key); err != nil {
		return err
	} else if ok && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", key)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	if err := store.SetString(key, base64.StdEncoding.EncodeToString(raw)); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "stored %s\n", key)
	return nil
}

func storeValue(store *secretstore.Store, key string, force bool) error {
	if _, ok, err := store.GetString(key); err != nil {
		return err
	} else if ok && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", key)
	}

	fmt.Fprintf(os.Stderr, "enter value for %s, then newline:\n", key)
	val := strings.TrimSpace(readLine())
	if val == "" {
		return errors.New("value is empty")
	}
	if err := store.SetString(key, val); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "stored %s\n", key)
	return nil
}

func readLine() string {
	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 64*1024), 64*1024)
	if sc.Scan() {
		return sc.Text()
	}
	return ""
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
