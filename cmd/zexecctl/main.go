// Command zexecctl is the client-side counterpart to zexecnode: it builds
// a job bundle (sysmap + named device files) into a tar archive and POSTs
// it to a node's `/<device>/<partition>/<account>/<container>/<object>`
// endpoint, the way cmd/cli/cli/object.go parses a bucket/object URI,
// builds request args, and reports the result -- rebuilt here against
// cobra (this module's CLI dependency) instead of urfave/cli.
/*
 * Copyright (c) 2024, zexec authors.
 */
package main

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	tario "github.com/aistore/zexec/tar"
)

var (
	flagNode        string
	flagDevice      string
	flagPartition   string
	flagAccount     string
	flagContainer   string
	flagObject      string
	flagZerocloudID string
	flagSysmap      string
	flagFiles       []string
	flagDaemon      bool
	flagPool        string
	flagTimeout     int
	flagAccess      string
	flagTimestamp   string
	flagValidate    bool
	flagValid       bool
)

func main() {
	root := &cobra.Command{
		Use:   "zexecctl",
		Short: "submit and inspect zexec object-node execution requests",
	}
	root.PersistentFlags().StringVar(&flagNode, "node", "http://127.0.0.1:8080", "node base URL")

	root.AddCommand(runCmd())
	root.AddCommand(validateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "submit a job bundle for execution",
		RunE: func(*cobra.Command, []string) error {
			return submit(false, false)
		},
	}
	addBundleFlags(cmd)
	cmd.Flags().BoolVar(&flagDaemon, "daemon", false, "dispatch through the cached daemon path (X-Zerovm-Daemon)")
	cmd.Flags().StringVar(&flagPool, "pool", "", "named thread pool (X-Zerovm-Pool)")
	cmd.Flags().IntVar(&flagTimeout, "timeout", 0, "per-request timeout override in seconds (X-Zerovm-Timeout)")
	cmd.Flags().StringVar(&flagAccess, "access", "", "X-Zerovm-Access: GET or PUT")
	cmd.Flags().StringVar(&flagTimestamp, "timestamp", "", "X-Timestamp, required for a writable local object")
	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "dry-run validate a stored executable (X-Zerovm-Validate) or check is_validated (X-Zerovm-Valid)",
		RunE: func(*cobra.Command, []string) error {
			return submit(flagValidate, flagValid)
		},
	}
	addBundleFlags(cmd)
	cmd.Flags().BoolVar(&flagValidate, "dry-run", false, "run the validator and mark the object on success")
	cmd.Flags().BoolVar(&flagValid, "check", false, "check is_validated without running the validator")
	return cmd
}

func addBundleFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&flagDevice, "device", "", "device name")
	cmd.Flags().StringVar(&flagPartition, "partition", "0", "partition")
	cmd.Flags().StringVar(&flagAccount, "account", "", "account")
	cmd.Flags().StringVar(&flagContainer, "container", "", "container")
	cmd.Flags().StringVar(&flagObject, "object", "", "object (optional: names the container when absent)")
	cmd.Flags().StringVar(&flagZerocloudID, "zerocloud-id", "", "X-Zerocloud-Id (required)")
	cmd.Flags().StringVar(&flagSysmap, "sysmap", "", "path to the job's system map JSON")
	cmd.Flags().StringArrayVar(&flagFiles, "file", nil, "device=path, repeatable; uploaded alongside sysmap")
	for _, name := range []string{"device", "account", "container", "zerocloud-id", "sysmap"} {
		cmd.MarkFlagRequired(name) //nolint:errcheck
	}
}

func submit(validate, valid bool) error {
	body, err := buildBundle()
	if err != nil {
		return err
	}

	path := fmt.Sprintf("/%s/%s/%s/%s", flagDevice, flagPartition, flagAccount, flagContainer)
	if flagObject != "" {
		path += "/" + flagObject
	}
	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(flagNode, "/")+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-tar")
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.Header.Set("X-Zerocloud-Id", flagZerocloudID)
	req.Header.Set("X-Zerovm-Execute", "1")
	if flagDaemon {
		req.Header.Set("X-Zerovm-Daemon", "1")
	}
	if flagPool != "" {
		req.Header.Set("X-Zerovm-Pool", flagPool)
	}
	if flagTimeout > 0 {
		req.Header.Set("X-Zerovm-Timeout", strconv.Itoa(flagTimeout))
	}
	if flagAccess != "" {
		req.Header.Set("X-Zerovm-Access", flagAccess)
	}
	if flagTimestamp != "" {
		req.Header.Set("X-Timestamp", flagTimestamp)
	}
	if validate {
		req.Header.Set("X-Zerovm-Validate", "1")
	}
	if valid {
		req.Header.Set("X-Zerovm-Valid", "1")
	}

	client := &http.Client{Timeout: 60 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, h := range []string{
		"X-Nexe-Validation", "X-Nexe-Retcode", "X-Nexe-Etag", "X-Nexe-Cdr-Line",
		"X-Nexe-Status", "X-Nexe-System", "X-Nexe-Error", "X-Zerovm-Validated", "X-Zerovm-Validated-At",
	} {
		if v := resp.Header.Get(h); v != "" {
			fmt.Printf("%s: %s\n", h, v)
		}
	}
	fmt.Printf("status: %s\n", resp.Status)
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

// buildBundle tars flagSysmap as the "sysmap" entry plus every device=path
// pair in flagFiles under its device name, the wire shape
// coordinator.ingestAndParse expects.
func buildBundle() ([]byte, error) {
	sysmap, err := os.ReadFile(flagSysmap)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := tario.NewWriter(&buf)
	if err := w.WriteEntry(tario.OutEntry{Name: "sysmap", Size: int64(len(sysmap))}, bytes.NewReader(sysmap)); err != nil {
		return nil, err
	}

	for _, f := range flagFiles {
		name, path, ok := strings.Cut(f, "=")
		if !ok {
			return nil, fmt.Errorf("zexecctl: malformed --file %q, expected device=path", f)
		}
		fi, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		rf, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		err = w.WriteEntry(tario.OutEntry{Name: name, Size: fi.Size()}, rf)
		rf.Close()
		if err != nil {
			return nil, err
		}
	}

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
