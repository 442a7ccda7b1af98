package projects

import "strings"

var languages = map[string]string{
	"rs":       "rust",
	"ts":       "typescript",
	"tsx":      "typescriptJsx",
	"js":       "javascript",
	"jsx":      "javascriptJsx",
	"py":       "python",
	"json":     "json",
	"md":       "markdown",
	"markdown": "markdown",
	"css":      "css",
	"scss":     "css",
	"sass":     "css",
	"html":     "html",
	"htm":      "html",
	"toml":     "toml",
	"yaml":     "yaml",
	"yml":      "yaml",
	"sql":      "sql",
	"sh":       "shell",
	"bash":     "shell",
	"zsh":      "shell",
	"ps1":      "powershell",
	"xml":      "xml",
	"svg":      "xml",
	"go":       "go",
	"java":     "java",
	"c":        "c",
	"h":        "c",
	"cpp":      "cpp",
	"cc":       "cpp",
	"cxx":      "cpp",
	"hpp":      "cpp",
	"lua":      "lua",
	"rb":       "ruby",
	"php":      "php",
	"swift":    "swift",
	"kt":       "kotlin",
	"kts":      "kotlin",
	"dart":     "dart",
	"lock":     "json", // package-lock, Cargo.lock
}

var binaryExts = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "ico": true, "bmp": true, "webp": true, "svg": true,
	"woff": true, "woff2": true, "ttf": true, "otf": true, "eot": true,
	"zip": true, "tar": true, "gz": true, "bz2": true, "xz": true, "7z": true,
	"exe": true, "dll": true, "so": true, "dylib": true,
	"pdf": true, "doc": true, "docx": true, "xls": true, "xlsx": true,
	"mp3": true, "mp4": true, "wav": true, "avi": true, "mkv": true, "flac": true,
	"db": true, "sqlite": true, "sqlite3": true,
	"wasm": true, "map": true,
}

// ext returns the text after the last dot, or the whole name when there is none.
func ext(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// DetectLanguage maps a file name to the editor language id, or "" when unknown.
func DetectLanguage(name string) string {
	return languages[ext(name)]
}

// IsBinary reports whether name has an extension of a known binary format.
func IsBinary(name string) bool {
	return binaryExts[ext(name)]
}
