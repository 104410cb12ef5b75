// Command gql-cli sends GraphQL operations from the command line. HTTP
// endpoints execute a single operation; WebSocket endpoints subscribe and
// stream each result as a line of JSON.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/gqlgo/gql"
	"github.com/gqlgo/gql/transport"
	"github.com/gqlgo/gql/transport/graphqlws"
)

func Run(w io.Writer, args ...string) error {
	flags := pflag.NewFlagSet(os.Args[0], pflag.ExitOnError)

	query := flags.StringP("query", "q", "", "the operation to send (default: read from stdin)")
	variables := flags.StringP("variables", "v", "", "operation variables as a json object")
	operationName := flags.String("operation-name", "", "the operation to run from a multi-operation document")
	headers := flags.StringArrayP("header", "H", nil, "additional headers as key=value pairs")
	timeout := flags.Duration("timeout", 30*time.Second, "per-operation timeout")
	retries := flags.Int("retries", 0, "number of execution attempts before giving up")
	verbose := flags.Bool("verbose", false, "enable debug logging")
	flags.Parse(args)

	logger := logrus.New()
	logger.Out = os.Stderr
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	// A .env file can provide GQL_ENDPOINT and ambient credentials.
	godotenv.Load()

	endpoint := os.Getenv("GQL_ENDPOINT")
	if flags.NArg() > 0 {
		endpoint = flags.Arg(0)
	}
	if endpoint == "" {
		return fmt.Errorf("an endpoint url is required (argument or GQL_ENDPOINT)")
	}

	if *query == "" {
		buf, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("error reading query from stdin: %w", err)
		}
		*query = string(buf)
	}
	doc, err := gql.Parse(*query)
	if err != nil {
		return err
	}

	var opts []gql.RequestOption
	if *variables != "" {
		var values map[string]interface{}
		if err := jsoniter.Unmarshal([]byte(*variables), &values); err != nil {
			return fmt.Errorf("malformed variables: %w", err)
		}
		opts = append(opts, gql.WithVariables(values))
	}
	if *operationName != "" {
		opts = append(opts, gql.WithOperationName(*operationName))
	}
	opts = append(opts, gql.WithTimeout(*timeout))

	header := http.Header{}
	for _, h := range *headers {
		key, value, ok := strings.Cut(h, "=")
		if !ok {
			return fmt.Errorf("malformed header: %v", h)
		}
		header.Add(key, value)
	}

	ctx := context.Background()
	encoder := jsoniter.NewEncoder(w)

	switch {
	case strings.HasPrefix(endpoint, "ws://"), strings.HasPrefix(endpoint, "wss://"):
		tr := &graphqlws.Transport{
			URL:        endpoint,
			HTTPHeader: header,
			Logger:     logger,
		}
		client, err := gql.NewClient(&gql.Config{Transport: tr, Retries: *retries, Logger: logger})
		if err != nil {
			return err
		}
		session, err := client.Connect(ctx)
		if err != nil {
			return err
		}
		defer session.Close()

		sub, err := session.Subscribe(ctx, doc, opts...)
		if err != nil {
			return err
		}
		defer sub.Close()
		for {
			data, err := sub.Recv(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if err := encoder.Encode(data); err != nil {
				return err
			}
		}
	case strings.HasPrefix(endpoint, "http://"), strings.HasPrefix(endpoint, "https://"):
		tr := &transport.HTTP{
			URL:     endpoint,
			Headers: header,
			Logger:  logger,
		}
		client, err := gql.NewClient(&gql.Config{Transport: tr, Retries: *retries, Logger: logger})
		if err != nil {
			return err
		}
		defer client.Close()

		data, err := client.Execute(ctx, doc, opts...)
		if err != nil {
			return err
		}
		return encoder.Encode(data)
	default:
		return fmt.Errorf("unsupported endpoint scheme: %v", endpoint)
	}
}

func main() {
	if err := Run(os.Stdout, os.Args[1:]...); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
