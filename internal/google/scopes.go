package google

// Service identifies one of the Google APIs this server talks to. The set is
// closed; there is no string-keyed dispatch to arbitrary services.
type Service string

const (
	ServiceGmail    Service = "gmail"
	ServiceCalendar Service = "calendar"
	ServiceDrive    Service = "drive"
	ServicePeople   Service = "people"
)

// Services lists every supported service.
var Services = []Service{ServiceGmail, ServiceCalendar, ServiceDrive, ServicePeople}

// serviceScopes maps each service to the OAuth scopes its client needs.
var serviceScopes = map[Service][]string{
	ServiceGmail: {
		"https://www.googleapis.com/auth/gmail.readonly",
		"https://www.googleapis.com/auth/gmail.modify",
	},
	ServiceCalendar: {
		"https://www.googleapis.com/auth/calendar",
	},
	ServiceDrive: {
		"https://www.googleapis.com/auth/drive.readonly",
	},
	ServicePeople: {
		"https://www.googleapis.com/auth/contacts.readonly",
	},
}

// ScopesFor returns the OAuth scopes required by a service.
func ScopesFor(svc Service) []string {
	scopes := serviceScopes[svc]
	out := make([]string, len(scopes))
	copy(out, scopes)
	return out
}

// DefaultOAuthScopes is the union of scopes requested during authorization,
// plus the OpenID Connect scopes needed to identify the account.
var DefaultOAuthScopes = buildDefaultScopes()

func buildDefaultScopes() []string {
	scopes := []string{
		"openid",
		"https://www.googleapis.com/auth/userinfo.email",
	}
	seen := make(map[string]bool)
	for _, svc := range Services {
		for _, s := range serviceScopes[svc] {
			if !seen[s] {
				seen[s] = true
				scopes = append(scopes, s)
			}
		}
	}
	return scopes
}
