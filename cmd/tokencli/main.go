// Command tokencli encodes and decodes text against a tokenizer.json or
// GGUF vocabulary from the command line.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"github.com/gomlx/gpttoken/hub"
	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/ggufvocab"
	"github.com/gomlx/gpttoken/tokenizers/hftokenizer"
)

func main() {
	klog.InitFlags(nil)
	var (
		tokenizerPath = flag.String("tokenizer", "", "path to a local tokenizer.json or .gguf file")
		tokenizerURL  = flag.String("url", "", "URL of a tokenizer.json or .gguf file to fetch and cache before loading; takes precedence over -tokenizer")
		cacheDir      = flag.String("cache_dir", filepath.Join(os.TempDir(), "gpttoken-hub-cache"), "directory -url downloads are cached under")
		mode          = flag.String("mode", "encode", "encode or decode")
		allowSpecial  = flag.Bool("allow_special", true, "allow special tokens on encode and decode (tokenizer.json only; .gguf vocabularies always allow them)")
		validUTF8     = flag.Bool("valid_utf8", true, "repair truncated UTF-8 on decode")
	)
	flag.Parse()
	defer klog.Flush()

	path := *tokenizerPath
	if *tokenizerURL != "" {
		fetched, err := hub.New(*cacheDir).Fetch(context.Background(), *tokenizerURL)
		if err != nil {
			klog.Exitf("fetching %q: %v", *tokenizerURL, err)
		}
		path = fetched
	}
	if path == "" {
		klog.Exit("one of -tokenizer or -url is required")
	}

	tok, err := load(path)
	if err != nil {
		klog.Exitf("loading %q: %v", path, err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch *mode {
		case "encode":
			if err := runEncode(tok, line, *allowSpecial); err != nil {
				klog.Errorf("encode: %v", err)
			}
		case "decode":
			if err := runDecode(tok, line, *allowSpecial, *validUTF8); err != nil {
				klog.Errorf("decode: %v", err)
			}
		default:
			klog.Exitf("unknown -mode %q, want encode or decode", *mode)
		}
	}
	if err := scanner.Err(); err != nil {
		klog.Exitf("reading stdin: %v", err)
	}
}

func load(path string) (api.Tokenizer, error) {
	if strings.HasSuffix(path, ".gguf") {
		return ggufvocab.NewFromFile(path)
	}
	return hftokenizer.NewFromFile(path)
}

func runEncode(tok api.Tokenizer, line string, allowSpecial bool) error {
	var (
		ids []int
		err error
	)
	if t, ok := tok.(interface {
		EncodeOpt(string, bool) ([]int, error)
	}); ok {
		ids, err = t.EncodeOpt(line, allowSpecial)
	} else {
		ids, err = tok.Encode(line)
	}
	if err != nil {
		return err
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = strconv.Itoa(id)
	}
	fmt.Println(strings.Join(strs, " "))
	return nil
}

func runDecode(tok api.Tokenizer, line string, allowSpecial, validUTF8 bool) error {
	fields := strings.Fields(line)
	ids := make([]int, len(fields))
	for i, f := range fields {
		id, err := strconv.Atoi(f)
		if err != nil {
			return fmt.Errorf("parsing token id %q: %w", f, err)
		}
		ids[i] = id
	}

	var (
		text string
		err  error
	)
	if t, ok := tok.(interface {
		DecodeOpt([]int, bool, bool) (string, error)
	}); ok {
		text, err = t.DecodeOpt(ids, allowSpecial, validUTF8)
	} else {
		text, err = tok.Decode(ids, validUTF8)
	}
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
