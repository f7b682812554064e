// Package mcp connects tool registries to the Model Context Protocol.
//
// MCP lets assistants discover and call tools hosted by another process.
// The integration runs both ways:
//
//   - Server: expose a [tool.Registry] (the stock tools) as an MCP server so
//     MCP clients such as desktop assistants can use them.
//   - Remote: connect to an MCP server and turn its tools into [tool.Tool]
//     values that can be registered next to the built-in ones.
//
// # Exposing Tools
//
//	registry := stocktools.NewRegistry(sources)
//	if err := mcp.ServeStdio(registry, mcp.WithName("stockagent")); err != nil {
//	    log.Fatal(err)
//	}
//
// # Importing Tools
//
//	remote, err := mcp.Connect(ctx, "./other-mcp-server", nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer remote.Close()
//	registry.MustRegister(remote.Tools()...)
package mcp
