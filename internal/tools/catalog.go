package tools

const (
	CategoryOrganize = "organize"
	CategorySecurity = "security"
	CategoryOptimize = "optimize"
	CategoryEdit     = "edit"
	CategoryConvert  = "convert"
	CategoryInspect  = "inspect"
)

const (
	stirlingFileField  = "fileInput"
	gotenbergFileField = "files"
	maxMergeInputs     = 20
	maxImageInputs     = 50
)

type option func(*Tool)

func files(min, max int) option {
	return func(t *Tool) {
		t.MinFiles = min
		t.MaxFiles = max
	}
}

func output(ext string) option {
	return func(t *Tool) { t.OutputExt = ext }
}

func static(kv ...string) option {
	return func(t *Tool) {
		t.Static = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			t.Static[kv[i]] = kv[i+1]
		}
	}
}

func uploadName(name string) option {
	return func(t *Tool) { t.FileName = name }
}

func params(ps ...Param) option {
	return func(t *Tool) { t.Params = ps }
}

func stirling(name, title, category, path string, opts ...option) Tool {
	t := Tool{
		Name:      name,
		Title:     title,
		Category:  category,
		Engine:    EngineStirling,
		Path:      path,
		FileField: stirlingFileField,
		MinFiles:  1,
		MaxFiles:  1,
		OutputExt: "pdf",
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func gotenberg(name, title, category, path string, opts ...option) Tool {
	t := Tool{
		Name:      name,
		Title:     title,
		Category:  category,
		Engine:    EngineGotenberg,
		Path:      path,
		FileField: gotenbergFileField,
		MinFiles:  1,
		MaxFiles:  1,
		OutputExt: "pdf",
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

func str(name, field, rule string) Param {
	return Param{Name: name, Field: field, Kind: KindString, Rule: rule}
}

func webURL(name, field string) Param {
	return Param{Name: name, Field: field, Kind: KindURL, Required: true, Rule: "required,public_url,max=2048"}
}

func integer(name, field, rule string) Param {
	return Param{Name: name, Field: field, Kind: KindInt, Rule: rule}
}

func number(name, field, rule string) Param {
	return Param{Name: name, Field: field, Kind: KindFloat, Rule: rule}
}

func boolean(name, field string) Param {
	return Param{Name: name, Field: field, Kind: KindBool}
}

func (p Param) required() Param {
	p.Required = true
	return p
}

func (p Param) def(value string) Param {
	p.Default = value
	return p
}

const pageSelection = "required,max=500"

var catalog = []Tool{
	// organize
	stirling("rotate", "Rotate PDF", CategoryOrganize, "/api/v1/general/rotate-pdf",
		params(integer("angle", "angle", "oneof=0 90 180 270 -90 -180 -270").def("90"))),
	stirling("merge", "Merge PDFs", CategoryOrganize, "/api/v1/general/merge-pdfs",
		files(2, maxMergeInputs),
		params(
			str("sort_type", "sortType", "oneof=orderProvided byFileName byDateModified byDateCreated byPDFTitle").def("orderProvided"),
			boolean("remove_cert_sign", "removeCertSign"),
		)),
	stirling("split", "Split PDF", CategoryOrganize, "/api/v1/general/split-pages",
		output("zip"),
		params(str("page_numbers", "pageNumbers", pageSelection).required())),
	stirling("remove-pages", "Remove pages", CategoryOrganize, "/api/v1/general/remove-pages",
		params(str("page_numbers", "pageNumbers", pageSelection).required())),
	stirling("rearrange-pages", "Rearrange pages", CategoryOrganize, "/api/v1/general/rearrange-pages",
		params(
			str("page_numbers", "pageNumbers", "max=500"),
			str("custom_mode", "customMode", "oneof=CUSTOM REVERSE_ORDER DUPLEX_SORT BOOKLET_SORT ODD_EVEN_SPLIT ODD_EVEN_MERGE REMOVE_FIRST REMOVE_LAST REMOVE_FIRST_AND_LAST DUPLICATE").def("CUSTOM"),
		)),
	stirling("scale-pages", "Scale pages", CategoryOrganize, "/api/v1/general/scale-pages",
		params(
			str("page_size", "pageSize", "oneof=A0 A1 A2 A3 A4 A5 A6 LETTER LEGAL KEEP").def("A4"),
			number("scale_factor", "scaleFactor", "gt=0,lte=10"),
		)),
	stirling("multi-page-layout", "Multiple pages per sheet", CategoryOrganize, "/api/v1/general/multi-page-layout",
		params(
			integer("pages_per_sheet", "pagesPerSheet", "oneof=2 3 4 9 16").def("2"),
			boolean("add_border", "addBorder"),
		)),
	stirling("crop", "Crop PDF", CategoryOrganize, "/api/v1/general/crop",
		params(
			number("x", "x", "gte=0").required(),
			number("y", "y", "gte=0").required(),
			number("width", "width", "gt=0").required(),
			number("height", "height", "gt=0").required(),
		)),
	stirling("single-page", "PDF to single page", CategoryOrganize, "/api/v1/general/pdf-to-single-page"),

	// security
	stirling("watermark", "Add watermark", CategorySecurity, "/api/v1/security/add-watermark",
		static("watermarkType", "text"),
		params(
			str("text", "watermarkText", "required,max=200").required(),
			number("font_size", "fontSize", "gt=0,lte=500").def("30"),
			integer("rotation", "rotation", "gte=-360,lte=360").def("45"),
			number("opacity", "opacity", "gte=0,lte=1").def("0.5"),
			integer("width_spacer", "widthSpacer", "gte=0,lte=1000").def("50"),
			integer("height_spacer", "heightSpacer", "gte=0,lte=1000").def("50"),
			str("color", "customColor", "hexcolor").def("#d3d3d3"),
			boolean("convert_to_image", "convertPDFToImage"),
		)),
	stirling("protect", "Add password", CategorySecurity, "/api/v1/security/add-password",
		params(
			str("password", "password", "required,max=128").required(),
			str("owner_password", "ownerPassword", "max=128"),
			integer("key_length", "keyLength", "oneof=40 128 256").def("256"),
			boolean("prevent_printing", "preventPrinting"),
			boolean("prevent_modify", "preventModify"),
			boolean("prevent_extract_content", "preventExtractContent"),
		)),
	stirling("unlock", "Remove password", CategorySecurity, "/api/v1/security/remove-password",
		params(str("password", "password", "required,max=128").required())),
	stirling("sanitize", "Sanitize PDF", CategorySecurity, "/api/v1/security/sanitize-pdf",
		params(
			boolean("remove_javascript", "removeJavaScript").def("true"),
			boolean("remove_embedded_files", "removeEmbeddedFiles").def("true"),
			boolean("remove_xmp_metadata", "removeXMPMetadata"),
			boolean("remove_metadata", "removeMetadata"),
			boolean("remove_links", "removeLinks"),
			boolean("remove_fonts", "removeFonts"),
		)),
	stirling("redact", "Auto redact", CategorySecurity, "/api/v1/security/auto-redact",
		params(
			str("text", "listOfText", "required,max=5000").required(),
			boolean("use_regex", "useRegex"),
			boolean("whole_word", "wholeWordSearch"),
			str("color", "redactColor", "hexcolor").def("#000000"),
			number("padding", "customPadding", "gte=0,lte=100"),
			boolean("convert_to_image", "convertPDFToImage").def("true"),
		)),
	stirling("remove-signature", "Remove certificate signature", CategorySecurity, "/api/v1/security/remove-cert-sign"),

	// inspect
	stirling("info", "Get PDF info", CategoryInspect, "/api/v1/security/get-info-on-pdf",
		output("json")),

	// optimize
	stirling("ocr", "OCR PDF", CategoryOptimize, "/api/v1/misc/ocr-pdf",
		params(
			str("languages", "languages", "max=100").def("eng"),
			str("ocr_type", "ocrType", "oneof=skip-text force-ocr Normal").def("skip-text"),
			str("render_type", "ocrRenderType", "oneof=hocr sandwich").def("hocr"),
			boolean("deskew", "deskew"),
			boolean("clean", "clean"),
		)),
	stirling("compress", "Compress PDF", CategoryOptimize, "/api/v1/misc/compress-pdf",
		params(
			integer("level", "optimizeLevel", "min=1,max=9").def("5"),
			str("expected_size", "expectedOutputSize", "max=20"),
			boolean("grayscale", "grayscale"),
		)),
	stirling("flatten", "Flatten PDF", CategoryOptimize, "/api/v1/misc/flatten",
		params(boolean("only_forms", "flattenOnlyForms"))),
	stirling("repair", "Repair PDF", CategoryOptimize, "/api/v1/misc/repair"),
	stirling("remove-blanks", "Remove blank pages", CategoryOptimize, "/api/v1/misc/remove-blanks",
		params(
			integer("threshold", "threshold", "min=0,max=255").def("10"),
			number("white_percent", "whitePercent", "gt=0,lte=100").def("99.9"),
		)),

	// edit
	stirling("page-numbers", "Add page numbers", CategoryEdit, "/api/v1/misc/add-page-numbers",
		params(
			str("margin", "customMargin", "oneof=small medium large x-large").def("medium"),
			integer("position", "position", "min=1,max=9").def("8"),
			integer("starting_number", "startingNumber", "min=1").def("1"),
			str("pages", "pagesToNumber", "max=500"),
			str("custom_text", "customText", "max=200"),
			number("font_size", "fontSize", "gt=0,lte=200").def("12"),
		)),
	stirling("metadata", "Change metadata", CategoryEdit, "/api/v1/misc/update-metadata",
		params(
			str("title", "title", "max=500"),
			str("author", "author", "max=500"),
			str("subject", "subject", "max=500"),
			str("keywords", "keywords", "max=1000"),
			str("creator", "creator", "max=500"),
			str("producer", "producer", "max=500"),
			boolean("delete_all", "deleteAll"),
		)),
	stirling("stamp", "Add stamp", CategoryEdit, "/api/v1/misc/add-stamp",
		static("stampType", "text"),
		params(
			str("text", "stampText", "required,max=200").required(),
			str("pages", "pageNumbers", "max=500").def("all"),
			integer("position", "position", "min=1,max=9").def("5"),
			number("font_size", "fontSize", "gt=0,lte=500").def("40"),
			integer("rotation", "rotation", "gte=-360,lte=360").def("0"),
			number("opacity", "opacity", "gte=0,lte=1").def("0.5"),
			number("override_x", "overrideX", "").def("-1"),
			number("override_y", "overrideY", "").def("-1"),
			str("margin", "customMargin", "oneof=small medium large x-large").def("medium"),
			str("color", "customColor", "hexcolor").def("#d3d3d3"),
		)),
	stirling("extract-images", "Extract images", CategoryEdit, "/api/v1/misc/extract-images",
		output("zip"),
		params(
			str("format", "format", "oneof=png jpeg gif").def("png"),
			boolean("allow_duplicates", "allowDuplicates"),
		)),

	// convert
	stirling("pdf-to-image", "PDF to image", CategoryConvert, "/api/v1/convert/pdf/img",
		output("zip"),
		params(
			str("format", "imageFormat", "oneof=png jpg gif webp").def("png"),
			str("single_or_multiple", "singleOrMultiple", "oneof=single multiple").def("multiple"),
			str("color_type", "colorType", "oneof=color greyscale blackwhite").def("color"),
			integer("dpi", "dpi", "min=72,max=600").def("300"),
			str("pages", "pageNumbers", "max=500"),
		)),
	stirling("image-to-pdf", "Image to PDF", CategoryConvert, "/api/v1/convert/img/pdf",
		files(1, maxImageInputs),
		params(
			str("fit_option", "fitOption", "oneof=fillPage fitDocumentToImage maintainAspectRatio").def("fillPage"),
			str("color_type", "colorType", "oneof=color greyscale blackwhite").def("color"),
			boolean("auto_rotate", "autoRotate"),
		)),
	stirling("pdf-to-word", "PDF to Word", CategoryConvert, "/api/v1/convert/pdf/word",
		output("docx"),
		params(str("format", "outputFormat", "oneof=doc docx odt").def("docx"))),
	stirling("pdf-to-presentation", "PDF to presentation", CategoryConvert, "/api/v1/convert/pdf/presentation",
		output("pptx"),
		params(str("format", "outputFormat", "oneof=ppt pptx odp").def("pptx"))),
	stirling("pdf-to-text", "PDF to text", CategoryConvert, "/api/v1/convert/pdf/text",
		output("txt"),
		params(str("format", "outputFormat", "oneof=rtf txt").def("txt"))),
	stirling("pdf-to-html", "PDF to HTML", CategoryConvert, "/api/v1/convert/pdf/html",
		output("zip")),
	stirling("pdf-to-xml", "PDF to XML", CategoryConvert, "/api/v1/convert/pdf/xml",
		output("xml")),
	stirling("pdf-to-csv", "PDF to CSV", CategoryConvert, "/api/v1/convert/pdf/csv",
		output("csv"),
		params(str("pages", "pageNumbers", "max=500").def("all"))),
	stirling("pdf-to-pdfa", "PDF to PDF/A", CategoryConvert, "/api/v1/convert/pdf/pdfa",
		params(str("format", "outputFormat", "oneof=pdfa pdfa-1").def("pdfa"))),
	stirling("pdf-to-markdown", "PDF to Markdown", CategoryConvert, "/api/v1/convert/pdf/markdown",
		output("md")),

	gotenberg("office-to-pdf", "Office document to PDF", CategoryConvert, "/forms/libreoffice/convert",
		params(
			boolean("landscape", "landscape"),
			str("page_ranges", "nativePageRanges", "max=500"),
			str("pdfa", "pdfa", "oneof=PDF/A-1b PDF/A-2b PDF/A-3b"),
		)),
	gotenberg("office-merge", "Merge office documents", CategoryConvert, "/forms/libreoffice/convert",
		files(2, maxMergeInputs),
		static("merge", "true"),
		params(
			boolean("landscape", "landscape"),
			str("pdfa", "pdfa", "oneof=PDF/A-1b PDF/A-2b PDF/A-3b"),
		)),
	gotenberg("html-to-pdf", "HTML to PDF", CategoryConvert, "/forms/chromium/convert/html",
		uploadName("index.html"),
		params(
			number("paper_width", "paperWidth", "gt=0,lte=100"),
			number("paper_height", "paperHeight", "gt=0,lte=100"),
			number("margin_top", "marginTop", "gte=0,lte=20"),
			number("margin_bottom", "marginBottom", "gte=0,lte=20"),
			number("margin_left", "marginLeft", "gte=0,lte=20"),
			number("margin_right", "marginRight", "gte=0,lte=20"),
			boolean("landscape", "landscape"),
			boolean("print_background", "printBackground"),
			str("wait_delay", "waitDelay", "max=10"),
		)),
	gotenberg("url-to-pdf", "Web page to PDF", CategoryConvert, "/forms/chromium/convert/url",
		files(0, 0),
		params(
			webURL("url", "url"),
			boolean("landscape", "landscape"),
			boolean("print_background", "printBackground"),
			str("wait_delay", "waitDelay", "max=10"),
		)),
	gotenberg("screenshot", "Web page screenshot", CategoryConvert, "/forms/chromium/screenshot/url",
		files(0, 0),
		output("png"),
		params(
			webURL("url", "url"),
			str("format", "format", "oneof=png jpeg webp").def("png"),
			integer("width", "width", "min=100,max=3840").def("1280"),
			integer("height", "height", "min=100,max=2160").def("800"),
			boolean("clip", "clip"),
		)),
}
