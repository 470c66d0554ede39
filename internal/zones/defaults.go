package zones

import "MineSafetyAPI/internal/models"

// DefaultZones are the sites monitored when no engine config file is given.
func DefaultZones() []models.Zone {
	return []models.Zone{
		{ID: "jharia-a", Name: "Jharia Coal Mine - Block A", State: "Jharkhand", District: "Dhanbad",
			Latitude: 23.7500, Longitude: 86.4200, MineType: "Coal", WorkerCount: 420},
		{ID: "bailadila-14", Name: "Bailadila Iron Ore - Sector 14", State: "Chhattisgarh", District: "Dantewada",
			Latitude: 18.6000, Longitude: 81.2000, MineType: "Iron Ore", WorkerCount: 310},
		{ID: "kolar-l3", Name: "Kolar Gold Fields - Level 3", State: "Karnataka", District: "Kolar",
			Latitude: 12.9500, Longitude: 78.2700, MineType: "Gold", WorkerCount: 180},
		{ID: "singareni-p2", Name: "Singareni Coal - Pit 2", State: "Telangana", District: "Bhadradri Kothagudem",
			Latitude: 17.5500, Longitude: 80.6200, MineType: "Coal", WorkerCount: 350},
		{ID: "rajasthan-marble", Name: "Rajasthan Marble Quarry", State: "Rajasthan", District: "Rajsamand",
			Latitude: 25.0700, Longitude: 73.8800, MineType: "Marble", WorkerCount: 95},
		{ID: "odisha-bauxite", Name: "Odisha Bauxite Mine", State: "Odisha", District: "Koraput",
			Latitude: 18.8100, Longitude: 82.7100, MineType: "Bauxite", WorkerCount: 260},
		{ID: "gujarat-limestone", Name: "Gujarat Limestone Quarry", State: "Gujarat", District: "Porbandar",
			Latitude: 21.6400, Longitude: 69.6100, MineType: "Limestone", WorkerCount: 140},
	}
}
