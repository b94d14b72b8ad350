package canvas

import "time"

// Only the fields the tree builder needs are decoded.

// User is /api/v1/users/self.
type User struct {
	ID        uint64     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt *time.Time `json:"created_at"`
}

// Course is an entry of /api/v1/courses. Courses the user can no longer
// access are listed without a name.
type Course struct {
	ID        uint64     `json:"id"`
	Name      *string    `json:"name"`
	CreatedAt *time.Time `json:"created_at"`
	StartAt   *time.Time `json:"start_at"`
}

// Folder is an entry of /api/v1/courses/:id/folders.
type Folder struct {
	ID             uint64     `json:"id"`
	Name           string     `json:"name"`
	FullName       string     `json:"full_name"`
	ParentFolderID *uint64    `json:"parent_folder_id"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}

// File is an entry of /api/v1/courses/:id/files.
type File struct {
	ID          uint64     `json:"id"`
	FolderID    uint64     `json:"folder_id"`
	DisplayName string     `json:"display_name"`
	Filename    string     `json:"filename"`
	Size        int64      `json:"size"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
	ModifiedAt  *time.Time `json:"modified_at"`
}

// Module is an entry of /api/v1/courses/:id/modules?include[]=items.
type Module struct {
	ID       uint64       `json:"id"`
	Name     string       `json:"name"`
	Position int          `json:"position"`
	Items    []ModuleItem `json:"items"`
}

// ModuleItem is an item of a module. Items of type ItemTypeFile refer to
// a file by ContentID.
type ModuleItem struct {
	ID        uint64 `json:"id"`
	Title     string `json:"title"`
	Type      string `json:"type"`
	ContentID uint64 `json:"content_id"`
}

// ItemTypeFile is the module item type of attached files.
const ItemTypeFile = "File"
