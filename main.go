// Copyright 2025 CloudWeGo Authors
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

/**
 * Copyright 2024 ByteDance Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/cloudwego/eino/schema"
	"github.com/fanjia1024/ragflow/api"
	"github.com/fanjia1024/ragflow/internal/config"
	"github.com/fanjia1024/ragflow/internal/graph"
	"github.com/fanjia1024/ragflow/internal/store"
	"github.com/fanjia1024/ragflow/internal/workflow/rag"
	"github.com/fanjia1024/ragflow/internal/workflow/report"
	"github.com/fanjia1024/ragflow/llm"
	"github.com/fanjia1024/ragflow/llm/log"
	"github.com/fanjia1024/ragflow/llm/mcp"
	"github.com/fanjia1024/ragflow/llm/prompt"
	"github.com/fanjia1024/ragflow/llm/tool"
	"github.com/fanjia1024/ragflow/version"
	"github.com/fatih/color"
)

const Usage = `ragflow <Action> [Argument] [Flags]
Action:
   ask          answer a question from the documents under -docs
   report       write a researched report on a topic
   ingest       split the given files, directories or urls and print the chunks
   serve        run the HTTP API
   mcp          run as a MCP server over stdio (or SSE with -sse)
   version      print the version of ragflow
`

func main() {
	flags := flag.NewFlagSet("ragflow", flag.ExitOnError)

	flagHelp := flags.Bool("h", false, "Show help message.")
	flagVerbose := flags.Bool("verbose", false, "Verbose mode.")
	flagOutput := flags.String("o", "", "Output path.")
	flagConfig := flags.String("config", "", "Config file (YAML).")
	flagDocs := flags.String("docs", "", "Directory of documents to index at startup, overrides store.dir.")
	flagSSE := flags.String("sse", "", "Serve MCP over SSE on this address instead of stdio.")
	var urls StringArray
	flags.Var(&urls, "url", "page to fetch and index at startup, support multiple values")

	flags.Usage = func() {
		fmt.Fprint(os.Stderr, Usage)
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flags.PrintDefaults()
	}

	if len(os.Args) < 2 {
		flags.Usage()
		os.Exit(1)
	}
	action := strings.ToLower(os.Args[1])
	if action == "version" {
		fmt.Fprintf(os.Stdout, "%s\n", version.Version)
		return
	}

	args := parseArgsAndFlags(flags, flagHelp, flagVerbose)
	cfg, err := config.Load(*flagConfig)
	if err != nil {
		log.Error("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *flagDocs != "" {
		cfg.Store.Dir = *flagDocs
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch action {
	case "ask":
		question := strings.Join(args, " ")
		if question == "" {
			log.Error("Argument Question is required\n")
			os.Exit(1)
		}
		a := mustApp(ctx, cfg, urls, true)
		defer a.Close()

		ans, err := a.rag.Answer(ctx, question)
		if err != nil {
			exitRunError("answer", err)
		}
		if ans.BestEffort {
			log.Info("Visit budget reached, returning the last generation\n")
		}
		writeOutput(*flagOutput, ans, ans.Generation)

	case "report":
		topic := strings.Join(args, " ")
		if topic == "" {
			log.Error("Argument Topic is required\n")
			os.Exit(1)
		}
		a := mustApp(ctx, cfg, urls, true)
		defer a.Close()

		rep, err := a.report.Write(ctx, report.Request{Topic: topic})
		if err != nil {
			exitRunError("report", err)
		}
		writeOutput(*flagOutput, rep, rep.Content)

	case "ingest":
		if len(args) == 0 && len(urls) == 0 && cfg.Store.Dir == "" {
			log.Error("Argument Path is required\n")
			os.Exit(1)
		}
		a := mustApp(ctx, cfg, urls, false)
		defer a.Close()

		for _, p := range args {
			if err := a.indexPath(ctx, p); err != nil {
				log.Error("Failed to ingest %s: %v\n", p, err)
				os.Exit(1)
			}
		}
		chunks := a.store.Documents()
		summary := make(map[string]int)
		for _, c := range chunks {
			src, _ := c.MetaData[store.MetaSource].(string)
			summary[src]++
		}
		sources := make([]string, 0, len(summary))
		for src := range summary {
			sources = append(sources, src)
		}
		sort.Strings(sources)
		var text strings.Builder
		for _, src := range sources {
			fmt.Fprintf(&text, "%6d  %s\n", summary[src], src)
		}
		fmt.Fprintf(&text, "%6d  total", len(chunks))
		writeOutput(*flagOutput, chunks, text.String())

	case "serve":
		a := mustApp(ctx, cfg, urls, true)
		defer a.Close()

		svr := api.NewServer(api.Options{
			RAG:      a.rag,
			Report:   a.report,
			Ingester: a.ingester,
			Store:    a.store,
		})
		if err := svr.Serve(ctx, cfg.Server.Addr); err != nil {
			log.Error("Failed to run HTTP server: %v\n", err)
			os.Exit(1)
		}

	case "mcp":
		a := mustApp(ctx, cfg, urls, true)
		defer a.Close()

		svr := mcp.NewServer(mcp.ServerOptions{
			ServerName:    "ragflow",
			ServerVersion: version.Version,
			RAG:           a.rag,
			Report:        a.report,
			Ingester:      a.ingester,
			Searcher:      a.searcher,
		})
		if *flagSSE != "" {
			err = svr.ServeSSE(ctx, *flagSSE)
		} else {
			err = svr.ServeStdio(ctx)
		}
		if err != nil {
			log.Error("Failed to run MCP server: %v\n", err)
			os.Exit(1)
		}

	default:
		log.Error("Unsupported action: %s\n", action)
		flags.Usage()
		os.Exit(1)
	}
}

func parseArgsAndFlags(flags *flag.FlagSet, flagHelp *bool, flagVerbose *bool) []string {
	var args []string
	rest := os.Args[2:]
	// positional arguments may come before or after the flags
	for len(rest) > 0 {
		if err := flags.Parse(rest); err != nil {
			os.Exit(1)
		}
		rest = flags.Args()
		if len(rest) == 0 {
			break
		}
		args = append(args, rest[0])
		rest = rest[1:]
	}

	if flagHelp != nil && *flagHelp {
		flags.Usage()
		os.Exit(0)
	}
	if flagVerbose != nil && *flagVerbose {
		log.SetLogLevel(log.DebugLevel)
	}
	return args
}

type StringArray []string

func (s *StringArray) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func (s *StringArray) String() string {
	return strings.Join(*s, ",")
}

// app holds the services shared by every action.
type app struct {
	cfg      *config.Config
	store    *store.Store
	ingester *store.Ingester
	searcher tool.Searcher
	rag      *rag.Service
	report   *report.Service
	closers  []func() error
}

func mustApp(ctx context.Context, cfg *config.Config, urls []string, withLLM bool) *app {
	a, err := newApp(ctx, cfg, urls, withLLM)
	if err != nil {
		log.Error("Failed to start: %v\n", err)
		os.Exit(1)
	}
	return a
}

func newApp(ctx context.Context, cfg *config.Config, urls []string, withLLM bool) (*app, error) {
	a := &app{cfg: cfg}
	a.store = store.New(store.Options{
		Embedder: store.NewHashEmbedder(cfg.Store.Dimensions),
		TopK:     cfg.Store.TopK,
	})
	splitter, err := store.NewSplitter(ctx, cfg.Store.ChunkSize, cfg.Store.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	a.ingester = &store.Ingester{Indexer: a.store, Splitter: splitter}

	if dir := cfg.Store.Dir; dir != "" {
		if _, err := a.ingester.IndexDir(ctx, dir); err != nil {
			return nil, err
		}
		if cfg.Store.Watch {
			if err := store.Sync(ctx, dir, a.store, a.ingester); err != nil {
				return nil, err
			}
		}
	}
	if len(urls) > 0 {
		docs := make([]*schema.Document, 0, len(urls))
		for _, u := range urls {
			doc, err := store.FetchURL(ctx, nil, u)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		if _, err := a.ingester.Index(ctx, docs); err != nil {
			return nil, err
		}
	}
	if !withLLM {
		return a, nil
	}

	if err := a.initSearcher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initWorkflows(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) initSearcher(ctx context.Context) error {
	switch a.cfg.Search.Backend {
	case config.SearchBackendMCP:
		cli, err := tool.NewMCPClient(a.cfg.Search.MCP)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, cli.Close)
		if err := cli.Start(ctx); err != nil {
			return err
		}
		t, err := cli.GetTool(ctx, a.cfg.Search.Tool)
		if err != nil {
			return err
		}
		a.searcher = &tool.ToolSearcher{Tool: t, TopK: a.cfg.Search.TopK}
	default:
		a.searcher = &tool.StoreSearcher{Retriever: a.store, TopK: a.cfg.Search.TopK}
	}
	return nil
}

func (a *app) initWorkflows(ctx context.Context) error {
	log.Debug("chat model %s", a.cfg.LLM)
	cm, err := llm.NewChatModel(ctx, a.cfg.LLM)
	if err != nil {
		return err
	}
	client, err := llm.NewClient(ctx, cm, llm.ClientOptions{Name: a.cfg.LLM.Name, Timeout: a.cfg.LLM.Timeout})
	if err != nil {
		return err
	}
	prompts, err := prompt.Load(a.cfg.Prompts)
	if err != nil {
		return err
	}
	run := a.cfg.RunConfig()
	run.OnStep = printStep

	a.rag, err = rag.NewService(rag.Options{
		LLM:       client,
		Retriever: a.store,
		Prompts:   prompts,
		TopK:      a.cfg.Store.TopK,
		Run:       run,
	})
	if err != nil {
		return err
	}
	a.report, err = report.NewService(report.Options{
		LLM:             client,
		Searcher:        a.searcher,
		Prompts:         prompts,
		Processor:       report.NewTextProcessor(a.cfg.Report.FilterWords...),
		NumberOfQueries: a.cfg.Report.NumberOfQueries,
		ReportStructure: a.cfg.Report.Structure,
		Run:             run,
	})
	return err
}

func (a *app) indexPath(ctx context.Context, p string) error {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		doc, err := store.FetchURL(ctx, nil, p)
		if err != nil {
			return err
		}
		_, err = a.ingester.Index(ctx, []*schema.Document{doc})
		return err
	}
	st, err := os.Stat(p)
	if err != nil {
		return err
	}
	if st.IsDir() {
		_, err = a.ingester.IndexDir(ctx, p)
		return err
	}
	doc, err := store.LoadFile(p)
	if err != nil {
		return err
	}
	_, err = a.ingester.Index(ctx, []*schema.Document{doc})
	return err
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error("close: %v\n", err)
		}
	}
	a.closers = nil
}

// printStep writes one transition to stderr.
func printStep(rec graph.StepRecord) {
	switch rec.Status {
	case graph.StepFailed:
		fmt.Fprintln(os.Stderr, color.RedString("%s failed (attempt %d): %s", rec.Node, rec.Attempt, rec.Error))
	case graph.StepRetry:
		fmt.Fprintln(os.Stderr, color.YellowString("%s retrying (attempt %d): %s", rec.Node, rec.Attempt, rec.Error))
	default:
		next := rec.Next
		if rec.Label != "" {
			next = fmt.Sprintf("%s (%s)", rec.Next, rec.Label)
		}
		if rec.FanOut > 0 {
			next = fmt.Sprintf("%d sub-run(s), then %s", rec.FanOut, rec.Next)
		}
		fmt.Fprintln(os.Stderr, color.CyanString("Finished running: %s", rec.Node), "->", next, color.HiBlackString("[%s %v]", rec.RunID, rec.Duration))
	}
}

func exitRunError(what string, err error) {
	_, resp := api.Describe(err)
	log.Error("Failed to %s: [%s] node=%s run=%s: %s\n", what, resp.Code, resp.Node, resp.RunID, resp.Message)
	os.Exit(1)
}

// writeOutput prints text, or writes v as JSON to path when one is given.
func writeOutput(path string, v any, text string) {
	if path == "" {
		fmt.Fprintf(os.Stdout, "%s\n", text)
		return
	}
	bs, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error("Failed to encode output: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(path, bs, 0o644); err != nil {
		log.Error("Failed to write output: %v\n", err)
		os.Exit(1)
	}
}
