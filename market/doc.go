// Package market fetches the data behind the stock tools: daily prices,
// company profiles, financial statements and earnings from Yahoo Finance,
// news from Google News or NewsAPI, and web results from DuckDuckGo.
//
// All HTTP traffic goes through a [Fetcher], which rate limits requests,
// retries transient failures and turns HTTP errors into categorized errors.
// [Cached] wraps the sources with a TTL cache from internal/store.
package market
