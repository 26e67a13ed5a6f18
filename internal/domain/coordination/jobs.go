package coordination

// Job names, one closed set per queue. A processor's dispatch switches over
// these constants and decodes into the matching payload type below.
const (
	JobWelcomeUser      = "welcome-user"
	JobUpdateProfile    = "update-profile"
	JobIndexProperty    = "index-property"
	JobProcessImages    = "process-images"
	JobSendEmail        = "send-email"
	JobSendNotification = "send-notification"
	JobEphemeralMessage = "ephemeral-message"
	JobReindexQuery     = "reindex-query"
	JobCleanupUploads   = "cleanup-uploads"
)

// WelcomeUserPayload seeds the user cache and greets a freshly registered user.
type WelcomeUserPayload struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
}

// UpdateProfilePayload invalidates a user's derived caches after a profile edit.
type UpdateProfilePayload struct {
	UserID string `json:"user_id"`
	Fields map[string]string `json:"fields,omitempty"`
}

// IndexPropertyPayload refreshes a property's cache entry and search index.
type IndexPropertyPayload struct {
	PropertyID string `json:"property_id"`
	OwnerID    string `json:"owner_id,omitempty"`
}

// ProcessImagesPayload attaches processed image URLs to a cached property.
type ProcessImagesPayload struct {
	PropertyID string   `json:"property_id"`
	ImageURLs  []string `json:"image_urls"`
}

// SendEmailPayload is handed to the external mailer via the email channel.
type SendEmailPayload struct {
	To       string            `json:"to"`
	Template string            `json:"template"`
	Vars     map[string]string `json:"vars,omitempty"`
}

// SendNotificationPayload fans out an in-app notification to one user.
type SendNotificationPayload struct {
	UserID string `json:"user_id"`
	Kind   string `json:"kind"`
	Body   string `json:"body"`
}

// EphemeralMessagePayload is a chat message that is queued and pub/sub
// delivered but never written to the relational store.
type EphemeralMessagePayload struct {
	Room     string `json:"room"`
	SenderID string `json:"sender_id"`
	Body     string `json:"body"`
}

// ReindexQueryPayload refreshes cached suggestions for a search query.
type ReindexQueryPayload struct {
	Query string `json:"query"`
}

// CleanupUploadsPayload prunes abandoned upload artifacts.
type CleanupUploadsPayload struct {
	OlderThanHours int `json:"older_than_hours"`
}
