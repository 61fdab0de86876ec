// Copyright 2025 ByteDance Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
)

const (
	DefaultFetchTimeout = 30 * time.Second
	// MaxBodySize caps fetched pages at 10MB.
	MaxBodySize = 10 << 20

	userAgent = "ragflow/1.0 (+https://github.com/fanjia1024/ragflow)"
)

// Supported reports whether path has an extension the loader understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown", ".html", ".htm":
		return true
	}
	return false
}

// LoadFile reads one file into a document. HTML is converted to markdown.
func LoadFile(path string) (*schema.Document, error) {
	bs, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	content := string(bs)
	if isHTML(path) {
		content, err = htmltomarkdown.ConvertString(content)
		if err != nil {
			return nil, errors.Wrapf(err, "convert %s to markdown", path)
		}
	}
	return &schema.Document{
		ID:       path,
		Content:  content,
		MetaData: map[string]any{MetaSource: path},
	}, nil
}

// LoadDir loads every supported file under dir, in lexical order.
func LoadDir(dir string) ([]*schema.Document, error) {
	var docs []*schema.Document
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !Supported(path) {
			return nil
		}
		doc, err := LoadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", dir)
	}
	return docs, nil
}

// FetchURL downloads a page and converts it to a markdown document.
func FetchURL(ctx context.Context, client *http.Client, url string) (*schema.Document, error) {
	if client == nil {
		client = &http.Client{Timeout: DefaultFetchTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", url)
	}
	if len(body) > MaxBodySize {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, MaxBodySize)
	}

	content := string(body)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		content, err = htmltomarkdown.ConvertString(content)
		if err != nil {
			return nil, errors.Wrapf(err, "convert %s to markdown", url)
		}
	}
	return &schema.Document{
		ID:       url,
		Content:  content,
		MetaData: map[string]any{MetaSource: url},
	}, nil
}

func isHTML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}
