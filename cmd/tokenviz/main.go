// Command tokenviz renders how a tokenizer splits a line of text into
// tokens, coloring each token span so adjacent tokens are easy to tell
// apart in a terminal.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"k8s.io/klog/v2"

	"github.com/gomlx/gpttoken/tokenizers/api"
	"github.com/gomlx/gpttoken/tokenizers/ggufvocab"
	"github.com/gomlx/gpttoken/tokenizers/hftokenizer"
)

// palette cycles through a handful of background colors so consecutive
// tokens are visually distinguishable regardless of terminal theme.
var palette = []lipgloss.Color{
	lipgloss.Color("24"),
	lipgloss.Color("58"),
	lipgloss.Color("88"),
	lipgloss.Color("22"),
	lipgloss.Color("53"),
}

func main() {
	klog.InitFlags(nil)
	tokenizerPath := flag.String("tokenizer", "", "path to a tokenizer.json or .gguf file")
	flag.Parse()
	defer klog.Flush()

	if *tokenizerPath == "" {
		klog.Exit("-tokenizer is required")
	}

	tok, err := load(*tokenizerPath)
	if err != nil {
		klog.Exitf("loading %q: %v", *tokenizerPath, err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		ids, err := tok.Encode(line)
		if err != nil {
			klog.Errorf("encode: %v", err)
			continue
		}
		fmt.Println(render(tok, ids))
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

// render decodes each id on its own and paints it with a color chosen by
// its position, falling back to a bracketed id when a single token fails
// to decode to valid text on its own (e.g. it is half of a multi-byte
// rune pair).
func render(tok api.Tokenizer, ids []int) string {
	var sb strings.Builder
	for i, id := range ids {
		style := lipgloss.NewStyle().
			Background(palette[i%len(palette)]).
			Foreground(lipgloss.Color("15"))

		text, err := tok.Decode([]int{id}, false)
		if err != nil || !utf8.ValidString(text) {
			text = "[" + strconv.Itoa(id) + "]"
		}
		sb.WriteString(style.Render(text))
	}
	return sb.String()
}
