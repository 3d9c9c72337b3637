package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/GoPolymarket/logreplay/internal/model"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

func newTailCmd() *cobra.Command {
	var server, prefix, token string
	var raw bool

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream captured exchanges from a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			endpoint, err := tailURL(server, prefix)
			if err != nil {
				return err
			}
			header := http.Header{}
			header.Set("Authorization", "Bearer "+token)

			conn, resp, err := websocket.DefaultDialer.DialContext(cmd.Context(), endpoint, header)
			if err != nil {
				if resp != nil {
					return fmt.Errorf("dial %s: %s", endpoint, resp.Status)
				}
				return fmt.Errorf("dial %s: %w", endpoint, err)
			}
			defer conn.Close()

			return readTail(conn, cmd.OutOrStdout(), raw)
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "base URL of the logreplay server")
	cmd.Flags().StringVar(&prefix, "prefix", "/api/logs", "viewer route prefix")
	cmd.Flags().StringVar(&token, "token", "", "operator bearer token")
	cmd.Flags().BoolVar(&raw, "json", false, "print records as raw JSON")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func tailURL(server, prefix string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.Trim(prefix, "/") + "/tail"
	return u.String(), nil
}

// readTail prints frames until the server closes the stream.
func readTail(conn *websocket.Conn, out io.Writer, raw bool) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
				return nil
			}
			return err
		}
		if raw {
			fmt.Fprintln(out, string(msg))
			continue
		}

		var rec model.AccessLog
		if err := json.Unmarshal(msg, &rec); err != nil {
			fmt.Fprintln(out, string(msg))
			continue
		}
		status, duration := "-", "-"
		if rec.StatusCode != nil {
			status = fmt.Sprint(*rec.StatusCode)
		}
		if rec.Duration != nil {
			duration = fmt.Sprintf("%dms", *rec.Duration)
		}
		fmt.Fprintf(out, "%s %s %s%s %s %s %s\n",
			rec.Timestamp.Format("2006-01-02T15:04:05.000Z"), rec.Method, rec.Path, rec.QueryString, status, duration, rec.RequestID)
	}
}
