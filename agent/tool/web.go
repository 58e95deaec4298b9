package tool

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/deep-market-agent/agent/contract"
	"github.com/tanpawarit/deep-market-agent/pkg/tavily"
)

const (
	ToolWebSearch  = "web_search"
	ToolWebExtract = "web_extract"
	ToolWebCrawl   = "web_crawl"
)

func WebSearch(web contractx.WebResearcher) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolWebSearch,
			Desc: "Search the web for current market data, competitors, prices and news.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query":           {Type: schema.String, Desc: "Search query", Required: true},
				"search_depth":    {Type: schema.String, Desc: "basic or advanced", Enum: []string{tavily.DepthBasic, tavily.DepthAdvanced}},
				"max_results":     {Type: schema.Integer, Desc: "Number of results, 1 to 20, default 5"},
				"topic":           {Type: schema.String, Desc: "general or news", Enum: []string{"general", "news"}},
				"include_domains": {Type: schema.Array, Desc: "Only search these domains", ElemInfo: &schema.ParameterInfo{Type: schema.String}},
				"exclude_domains": {Type: schema.Array, Desc: "Never return these domains", ElemInfo: &schema.ParameterInfo{Type: schema.String}},
			}),
		},
		Handler: func(ctx context.Context, _ RunContext, args map[string]any) (Result, error) {
			query, err := argString(args, "query", true)
			if err != nil {
				return Result{}, err
			}
			depth, _ := argString(args, "search_depth", false)
			topic, _ := argString(args, "topic", false)
			maxResults, err := argInt(args, "max_results")
			if err != nil {
				return Result{}, err
			}
			include, err := argStrings(args, "include_domains")
			if err != nil {
				return Result{}, err
			}
			exclude, err := argStrings(args, "exclude_domains")
			if err != nil {
				return Result{}, err
			}

			resp, err := web.Search(ctx, tavily.SearchRequest{
				Query:          query,
				SearchDepth:    depth,
				MaxResults:     maxResults,
				Topic:          topic,
				IncludeDomains: include,
				ExcludeDomains: exclude,
			})
			if err != nil {
				return Result{}, err
			}
			return jsonText(resp)
		},
	}
}

func WebExtract(web contractx.WebResearcher) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolWebExtract,
			Desc: fmt.Sprintf("Read the clean text content of up to %d web pages.", tavily.MaxExtractURLs),
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"urls": {Type: schema.Array, Desc: "Page URLs", Required: true, ElemInfo: &schema.ParameterInfo{Type: schema.String}},
			}),
		},
		Handler: func(ctx context.Context, _ RunContext, args map[string]any) (Result, error) {
			urls, err := argStrings(args, "urls")
			if err != nil {
				return Result{}, err
			}
			resp, err := web.Extract(ctx, urls)
			if err != nil {
				return Result{}, err
			}
			return jsonText(resp)
		},
	}
}

func WebCrawl(web contractx.WebResearcher) Tool {
	return Tool{
		Info: &schema.ToolInfo{
			Name: ToolWebCrawl,
			Desc: "Crawl a website starting from a URL and return the text of the pages found.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"url":       {Type: schema.String, Desc: "Start URL", Required: true},
				"max_depth": {Type: schema.Integer, Desc: "Link depth, 1 to 3, default 1"},
				"max_pages": {Type: schema.Integer, Desc: "Page budget, 1 to 100, default 10"},
			}),
		},
		Handler: func(ctx context.Context, _ RunContext, args map[string]any) (Result, error) {
			url, err := argString(args, "url", true)
			if err != nil {
				return Result{}, err
			}
			depth, err := argInt(args, "max_depth")
			if err != nil {
				return Result{}, err
			}
			pages, err := argInt(args, "max_pages")
			if err != nil {
				return Result{}, err
			}
			resp, err := web.Crawl(ctx, tavily.CrawlRequest{
				URL:               url,
				MaxDepth:          depth,
				MaxPages:          pages,
				IncludeSubdomains: argBool(args, "include_subdomains"),
			})
			if err != nil {
				return Result{}, err
			}
			return jsonText(resp)
		},
	}
}
