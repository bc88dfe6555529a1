package es

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/fundwit/go-commons/types"
)

// ELASTICSEARCH_URL
var (
	activeESClient *elasticsearch.Client
	clientOnce     sync.Once
)

func client() (*elasticsearch.Client, error) {
	var err error
	clientOnce.Do(func() {
		activeESClient, err = elasticsearch.NewClient(elasticsearch.Config{
			Transport: &TracingTransport{Transport: http.DefaultTransport},
		})
	})
	if activeESClient == nil {
		return nil, fmt.Errorf("elasticsearch client not available: %v", err)
	}
	return activeESClient, nil
}

func Index(ctx context.Context, index string, id types.ID, doc interface{}) error {
	c, err := client()
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(doc); err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id.String(),
		Body:       bytes.NewReader(buf.Bytes()),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := ioutil.ReadAll(res.Body)
		return fmt.Errorf("indexing failed with status %s: %s", res.Status(), string(body))
	}
	return nil
}
