package models

// EditorConfigRequest identifies the document the editor should open. It is
// built from the /editor route's query parameters.
type EditorConfigRequest struct {
	Token  string `json:"token"`
	FileID string `json:"id"`
	Name   string `json:"name"`
	Key    string `json:"key"`
	DealID string `json:"deal_id"`
	Lang   string `json:"lng"`
	Dark   bool   `json:"dark"`
}

// EditorPermissions mirrors the document-server permissions object.
type EditorPermissions struct {
	Edit     bool `json:"edit"`
	Download bool `json:"download"`
	Print    bool `json:"print"`
}

// EditorDocument describes the document handed to the editor widget.
type EditorDocument struct {
	FileType    string            `json:"fileType"`
	Key         string            `json:"key"`
	Title       string            `json:"title"`
	URL         string            `json:"url"`
	Permissions EditorPermissions `json:"permissions"`
}

// EditorUser identifies the collaborating user inside the editor.
type EditorUser struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EditorCustomization carries the widget customization block.
type EditorCustomization struct {
	HideRightMenu bool     `json:"hideRightMenu"`
	Plugins       bool     `json:"plugins"`
	PluginList    []string `json:"pluginList,omitempty"`
}

// EditorSettings is the editorConfig block of the widget configuration.
type EditorSettings struct {
	CallbackURL   string              `json:"callbackUrl"`
	User          EditorUser          `json:"user"`
	Lang          string              `json:"lang"`
	Customization EditorCustomization `json:"customization"`
	Plugins       []string            `json:"plugins,omitempty"`
}

// EditorConfig is the full configuration object the external editor widget
// consumes. Its shape is an external contract and must be matched exactly.
type EditorConfig struct {
	ServerURL    string         `json:"server_url"`
	Document     EditorDocument `json:"document"`
	DocumentType string         `json:"documentType"`
	EditorConfig EditorSettings `json:"editorConfig"`
	Token        string         `json:"token"`
	Type         string         `json:"type"`
}
