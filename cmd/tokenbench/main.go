// Command tokenbench round-trips every row of a text corpus stored in a
// parquet file through a tokenizer's Encode then Decode, reporting
// throughput and any row whose decoded text didn't match the original.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/text/unicode/norm"
	"k8s.io/klog/v2"

	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/ggufvocab"
	"github.com/gomlx/gpttoken/tokenizers/hftokenizer"
)

// corpusRow is the schema expected of the input parquet file: a single
// "text" column holding one document or sentence per row.
type corpusRow struct {
	Text string `parquet:"text"`
}

func main() {
	klog.InitFlags(nil)
	var (
		tokenizerPath = flag.String("tokenizer", "", "path to a tokenizer.json or .gguf file")
		corpusPath    = flag.String("corpus", "", "path to a parquet file with a \"text\" column")
	)
	flag.Parse()
	defer klog.Flush()

	if *tokenizerPath == "" || *corpusPath == "" {
		klog.Exit("-tokenizer and -corpus are both required")
	}

	tok, err := load(*tokenizerPath)
	if err != nil {
		klog.Exitf("loading %q: %v", *tokenizerPath, err)
	}

	f, err := os.Open(*corpusPath)
	if err != nil {
		klog.Exitf("opening %q: %v", *corpusPath, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		klog.Exitf("stat %q: %v", *corpusPath, err)
	}

	reader := parquet.NewGenericReader[corpusRow](f, stat.Size())
	defer reader.Close()

	rows := make([]corpusRow, 256)
	var total, mismatches int64
	var bytesProcessed int64
	start := time.Now()

	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			total++
			bytesProcessed += int64(len(row.Text))
			ids, encErr := tok.Encode(row.Text)
			if encErr != nil {
				klog.Warningf("row %d: encode: %v", total, encErr)
				mismatches++
				continue
			}
			decoded, decErr := tok.Decode(ids, true)
			if decErr != nil {
				klog.Warningf("row %d: decode: %v", total, decErr)
				mismatches++
				continue
			}
			if !normalizedEqual(decoded, row.Text) {
				klog.Warningf("row %d: round trip mismatch", total)
				mismatches++
			}
		}
		if err != nil {
			break
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("rows=%d mismatches=%d bytes=%d elapsed=%s throughput=%.1f MB/s\n",
		total, mismatches, bytesProcessed, elapsed, float64(bytesProcessed)/1e6/elapsed.Seconds())
}

// normalizedEqual allows for the NFC normalization the tokenizer always
// applies on encode: a row whose only difference from its decoded form is
// Unicode normalization is not a round-trip failure.
func normalizedEqual(decoded, original string) bool {
	return decoded == original || norm.NFC.String(decoded) == norm.NFC.String(original)
}

func load(path string) (api.Tokenizer, error) {
	if strings.HasSuffix(path, ".gguf") {
		return ggufvocab.NewFromFile(path)
	}
	return hftokenizer.NewFromFile(path)
}
