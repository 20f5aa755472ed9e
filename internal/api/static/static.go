// Package static 內嵌外掛頁面資產，__BASE_PATH__ 佔位符由處理器於回應時替換
package static

import (
	_ "embed"
)

//go:embed injector.js
var InjectorJS string

//go:embed page.css
var PageCSS string

//go:embed page.js
var PageJS string

//go:embed page.html
var PageHTML string
