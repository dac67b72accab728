package domain

// DefaultScheduleVersion tags the compiled-in catalog.
const DefaultScheduleVersion = "builtin-2024.1"

// DefaultSchedule is used when no schedule file is mounted.
func DefaultSchedule() Schedule {
	return Schedule{
		Version: DefaultScheduleVersion,
		Services: []ServiceFee{
			{
				Code: "NIN_MOD_DOB", Name: "NIN date of birth modification", Kind: KindNINModification, BasePrice: 15000,
				DateGap: &DateGapSurcharge{Tier1: 35000, Tier2: 45000},
			},
			{Code: "NIN_MOD_NAME", Name: "NIN name modification", Kind: KindNINModification, BasePrice: 7000},
			{Code: "NIN_MOD_PHONE", Name: "NIN phone number modification", Kind: KindNINModification, BasePrice: 4000},
			{Code: "NIN_MOD_ADDRESS", Name: "NIN address modification", Kind: KindNINModification, BasePrice: 4000},
			{
				Code: "BVN_MOD_DOB", Name: "BVN date of birth modification", Kind: KindBVNModification, BasePrice: 2000,
				DateGap: &DateGapSurcharge{
					Institutions: &InstitutionPolicy{
						Unsupported:       []string{"FCMB", "Zenith Bank", "Heritage Bank"},
						Agency:            []string{"Moniepoint", "Opay", "Palmpay", "Kuda"},
						AgencySurcharge:   7000,
						StandardSurcharge: 4000,
					},
				},
			},
			{Code: "BVN_MOD_NAME", Name: "BVN name modification", Kind: KindBVNModification, BasePrice: 2000},
			{Code: "BVN_MOD_PHONE", Name: "BVN phone number modification", Kind: KindBVNModification, BasePrice: 2000},
			{Code: "CAC_BN_REG", Name: "CAC business name registration", Kind: KindCACRegistration, BasePrice: 20000},
			{Code: "CAC_LTD_REG", Name: "CAC limited company registration", Kind: KindCACRegistration, BasePrice: 65000},
			{Code: "TIN_REG", Name: "TIN registration", Kind: KindTINRegistration, BasePrice: 3000},
			{Code: "WAEC_RESULT", Name: "WAEC result checker", Kind: KindExamResult, BasePrice: 4500},
			{Code: "NECO_RESULT", Name: "NECO result token", Kind: KindExamResult, BasePrice: 3000},
			{Code: "NEWSPAPER_CHANGE_OF_NAME", Name: "Newspaper change of name publication", Kind: KindNewspaperPublication, BasePrice: 6000},
			{Code: "NPC_ATTESTATION", Name: "NPC attestation letter", Kind: KindNPCAttestation, BasePrice: 12000},
			{
				Code: "VTU_AIRTIME", Name: "Airtime top-up", Kind: KindVTUVend,
				Variable: &VariableAmount{Min: 50, Max: 50000},
			},
			{
				Code: "VTU_DATA", Name: "Data bundle", Kind: KindVTUVend,
				Variable: &VariableAmount{Min: 50, Max: 50000},
			},
		},
	}
}
