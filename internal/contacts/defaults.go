package contacts

import "MineSafetyAPI/internal/models"

// DefaultContacts is the directory used when the engine config has none.
func DefaultContacts() []models.Contact {
	return []models.Contact{
		{Name: "Ram Kumar", Group: GroupWorkers, Phone: "+919876543210", WhatsApp: true, Zones: []string{"jharia-a"}},
		{Name: "Sunil Yadav", Group: GroupWorkers, Phone: "+919876543211", WhatsApp: true, Zones: []string{"bailadila-14"}},
		{Name: "Ajay Singh", Group: GroupWorkers, Phone: "+919876543212", Zones: []string{"kolar-l3"}},
		{Name: "Vikas Gupta", Group: GroupWorkers, Phone: "+919876543213", WhatsApp: true, Zones: []string{"singareni-p2"}},
		{Name: "Pradeep Sharma", Group: GroupSupervisors, Phone: "+919876543220", WhatsApp: true},
		{Name: "Sanjay Mishra", Group: GroupSupervisors, Phone: "+919876543221", WhatsApp: true, Zones: []string{"odisha-bauxite"}},
		{Name: "Rajesh Kumar", Group: GroupSupervisors, Phone: "+919876543222", Zones: []string{"gujarat-limestone"}},
		{Name: "DGMS Emergency", Group: GroupEmergency, Phone: "+911123384455"},
		{Name: "Mine Safety Officer", Group: GroupEmergency, Phone: "+919876543230", WhatsApp: true, Email: "safety.officer@mines.example.in"},
		{Name: "Dr. Anil Verma", Group: GroupManagement, Phone: "+919876543240", WhatsApp: true, Email: "chief.engineer@mines.example.in"},
		{Name: "Sumitra Devi", Group: GroupManagement, Phone: "+919876543241", WhatsApp: true, Email: "safety.director@mines.example.in"},
	}
}
