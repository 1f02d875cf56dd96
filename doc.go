// Package gomtl provides an LLM-backed translation and summarization client.
//
// The remote model is asked to answer with a fixed JSON envelope. gomtl builds
// those prompts, recovers the envelope from replies that may wrap it in prose
// or break it across lines, and retries calls that were rate limited or came
// back unusable.
//
// Basic usage:
//
//	import (
//	    "context"
//	    "github.com/ZaguanLabs/gomtl"
//	    "github.com/ZaguanLabs/gomtl/transport"
//	)
//
//	func main() {
//	    cfg := gomtl.DefaultConfig().With(gomtl.WithAPIKey(os.Getenv("MISTRAL_API_KEY")))
//
//	    client, err := transport.NewClient(cfg)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    t, err := gomtl.NewTranslator(cfg, client)
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//
//	    out, err := t.Translate(context.Background(), "Hello world", "en", "fr")
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    fmt.Println(out) // Bonjour le monde
//	}
package gomtl
