package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// BaseURLFunc returns the HTTP base URL of the allocd server. The embedding
// application supplies it; the standalone binary defaults to localhost.
type BaseURLFunc func() string

// postJSON posts a JSON body and pretty-prints the response.
func postJSON(base BaseURLFunc, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(base()+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

// getJSON fetches a path and pretty-prints the response.
func getJSON(base BaseURLFunc, path string) error {
	resp, err := http.Get(base() + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, raw, "", "  ") == nil {
		_, _ = pretty.WriteTo(os.Stdout)
		fmt.Println()
	} else if len(raw) > 0 {
		fmt.Println(string(raw))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
